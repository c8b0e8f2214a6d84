// Package main is the entry point for the streampulse application.
package main

import (
	"os"

	"github.com/jmylchreest/streampulse/cmd/streampulse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
