package main

import (
	"os"

	"github.com/dyget/dyget/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
