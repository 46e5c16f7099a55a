//go:build mage

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/magefile/mage/sh"
)

// Build builds loupe for Linux
func Build() error {
	fmt.Println("Building loupe for linux/amd64...")
	env := map[string]string{
		"GOOS":        "linux",
		"GOARCH":      "amd64",
		"CGO_ENABLED": "0",
	}
	return sh.RunWith(env, "go", "build", "-o", "loupe-linux-amd64", "./cmd/loupe")
}

// BuildLocal builds loupe for the current platform
func BuildLocal() error {
	fmt.Printf("Building loupe for %s/%s...\n", runtime.GOOS, runtime.GOARCH)
	return sh.Run("go", "build", "-o", "loupe", "./cmd/loupe")
}

// Test runs tests
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "./...")
}

// Integration runs tests including the Postgres-backed ones
func Integration() error {
	if os.Getenv("DATABASE_URL") == "" {
		return fmt.Errorf("DATABASE_URL must point at a Postgres instance")
	}
	return sh.Run("go", "test", "-v", "./...")
}

// Fmt runs gofmt on all Go files
func Fmt() error {
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet on all Go files
func Vet() error {
	return sh.Run("go", "vet", "./...")
}

// Tidy tidies go.mod
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	os.Remove("loupe")
	os.Remove("loupe-linux-amd64")
	return nil
}
