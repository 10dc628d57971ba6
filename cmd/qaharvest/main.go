// Package main provides the entry point for the qaharvest CLI.
package main

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/qaharvest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
