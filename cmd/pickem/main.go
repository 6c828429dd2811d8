package main

import (
	"os"

	"github.com/wonny/pickem/backend/cmd/pickem/commands"
)

// main is the entry point for the settlement CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/pickem [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
