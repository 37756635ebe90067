// Package main provides the qmdls command.
package main

import (
	"os"

	"github.com/leapstack-labs/qmdls/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
