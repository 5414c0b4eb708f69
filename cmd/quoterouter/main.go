// Package main is the entry point for the quoterouter binary.
package main

import (
	"os"

	"github.com/ineyio/quoterouter/cmd/quoterouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
