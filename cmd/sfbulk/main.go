// Package main is the entry point for the sfbulk CLI binary.
package main

import (
	"os"

	"github.com/timmy/sfbulk/internal/cli"
	"github.com/timmy/sfbulk/internal/logger"
)

func main() {
	code := cli.Execute()
	_ = logger.Sync()
	os.Exit(code)
}
