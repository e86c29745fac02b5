// Package main provides the entry point for the doubtctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/ashureev/doubt-solver/cmd/doubtctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
