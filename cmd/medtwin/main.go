package main

import (
	"fmt"
	"os"

	"github.com/gmsas95/medtwin/internal/cli"
	"github.com/gmsas95/medtwin/internal/config"
)

var version = "dev"

func main() {
	// .env values never override the real environment
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
