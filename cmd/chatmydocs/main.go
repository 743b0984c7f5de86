// Package main provides the entry point for the chatmydocs CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/chatmydocs/cmd/chatmydocs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
