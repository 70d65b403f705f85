package main

import (
	"fmt"
	"os"

	"github.com/arach/transcribe-dispatch/cmd"
	"github.com/arach/transcribe-dispatch/internal/config"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		fmt.Printf("error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}
