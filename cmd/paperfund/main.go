package main

import (
	"os"

	"github.com/rustyeddy/paperfund/cmd/paperfund/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
