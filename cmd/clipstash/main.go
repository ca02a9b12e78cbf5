// Package main provides the entry point for the clipstash CLI.
package main

import (
	"os"

	"github.com/clipstash/clipstash/cmd/clipstash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
