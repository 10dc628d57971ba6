// Package main runs the harvester as an MCP server on stdio.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/qaharvest/internal/cli"
)

func main() {
	if err := cli.ServeMCP(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
