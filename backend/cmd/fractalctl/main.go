package main

import (
	"fmt"
	"os"

	"fractal-graph/backend/internal/cli"
	"fractal-graph/backend/pkg/logger"
)

func main() {
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	logger.Sync()
	os.Exit(cli.ExitCode(err))
}
