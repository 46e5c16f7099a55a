package main

import (
	_ "embed"
	"strings"

	"go.uber.org/zap"

	"github.com/loupe-analytics/loupe/internal/cli"
	"github.com/loupe-analytics/loupe/internal/logging"
)

//go:embed VERSION
var versionFile string

//go:embed assets/loupe.js
var trackerScript []byte

var executeCLI = cli.Execute

func run() error {
	version := strings.TrimSpace(versionFile)
	return executeCLI(version, trackerScript)
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("loupe execution failed", zap.Error(err))
	}
}
