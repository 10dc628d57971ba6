// Package main runs the qaharvest API server, workers and cleanup scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/raphaelgruber/qaharvest/internal/cli"
)

func main() {
	listen := flag.String("listen", "", "listen address (overrides QAH_LISTEN_ADDR)")
	flag.Parse()

	if err := cli.Serve(context.Background(), *listen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
