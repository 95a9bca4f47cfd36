// Package main provides the entry point for the indexgen CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexgen/cmd/indexgen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
