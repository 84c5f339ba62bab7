package main

import (
	"context"
	"errors"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			color.Red("Error: %v", err)
		}
		os.Exit(1)
	}
}
