package main

import (
	"os"

	"github.com/wonny/aegis/fusion/cmd/fusion/commands"
)

// main is the entry point for the fusion CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/fusion [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
