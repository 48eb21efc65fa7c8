package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wavelane/wavelane/pkg/wavelane"
)

var (
	gitCommit  string
	versionTag string
	buildType  string
	verbose    bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "Show verbose logs (useful for debugging playback)")
	flag.BoolVar(&verbose, "v", false, "Shorthand for --verbose")
	flag.Parse()
}

func main() {
	// First we need a logger
	logger, err := wavelane.NewLogger(buildType)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Named logger for the 'main' function
	named := logger.Named("main")
	named.Debug("Created logger")

	// Log version info
	if versionTag != "" || gitCommit != "" {
		named.Infow("Version info", "gitCommit", gitCommit, "versionTag", versionTag, "buildType", buildType)
	}

	// Provide a fair warning if the user's running in verbose mode
	if verbose {
		named.Debug("Verbose mode enabled, all log messages will be shown")
	}

	// Create the player instance
	p, err := wavelane.NewPlayer(logger, verbose)
	if err != nil {
		named.Fatalw("Failed to create player instance", "error", err)
	}

	// Set version info for logs (if available)
	if versionTag != "" || gitCommit != "" {
		versionIdentifier := versionTag
		if versionIdentifier == "" {
			versionIdentifier = gitCommit
		}
		p.SetVersion(fmt.Sprintf("Version %s-%s", buildType, versionIdentifier))
	}

	// Initialize the player (blocks until playback ends or an interrupt)
	if err := p.Initialize(); err != nil {
		named.Fatalw("Failed to initialize player", "error", err)
	}
}
