// Package main provides the wallpaper-ai command line: a local server for the
// same HTTP surface the Lambda serves, a generation trigger, and catalog
// queries.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
