// Package main provides the CLI entrypoint for the LiveGate query
// gateway.
package main

import (
	"os"

	"github.com/leapstack-labs/livegate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
