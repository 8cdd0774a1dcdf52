package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"medialink-client-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	if err := bootstrap.RunDevServer(context.Background(), bootstrap.Options{ConfigPath: *configPath}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "medialink-devserver failed: %v\n", err)
		os.Exit(1)
	}
}
