package main

import (
	"os"

	"github.com/veranemoloko/download-panel/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
