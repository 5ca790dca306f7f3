// Package main is the entry point for the adhesive CLI, which registers
// functions from CREATE FUNCTION statements and evaluates them over
// columns given on the command line.
package main

import (
	"os"

	"github.com/cryguy/adhesive/cmd/adhesive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
