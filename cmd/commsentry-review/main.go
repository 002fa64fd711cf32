// Package main provides the anomaly review TUI entry point.
package main

import (
	"flag"
	"fmt"
	"os"

	"commsentry/internal/tui"
)

var (
	version = "dev"
)

func main() {
	var (
		showVersion bool
		serverURL   string
		apiKey      string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "commsentry server URL")
	flag.StringVar(&serverURL, "s", "http://localhost:8080", "commsentry server URL (shorthand)")
	flag.StringVar(&apiKey, "key", "", "API key (defaults to SENTRY_API_KEY)")
	flag.Parse()

	if showVersion {
		fmt.Printf("commsentry-review %s\n", version)
		os.Exit(0)
	}

	if apiKey == "" {
		apiKey = os.Getenv("SENTRY_API_KEY")
	}

	fmt.Println("Starting commsentry review TUI...")
	fmt.Printf("Connecting to: %s\n", serverURL)

	if err := tui.Run(serverURL, apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
