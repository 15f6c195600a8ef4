// Package main is the entry point for the remedy client.
package main

import (
	"os"

	"github.com/kumasuke/remedy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
