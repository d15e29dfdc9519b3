package main

import (
	"os"

	"github.com/tillpoint/tillpoint/cmd/tillpoint/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
