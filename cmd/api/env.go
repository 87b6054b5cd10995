package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv loads environment variables from .env when present.
// Existing process environment variables are not overridden.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load .env: %w", err)
}

// listenAddr is the HTTP bind address, CALC_ADDR or ":8080".
func listenAddr() string {
	if addr := os.Getenv("CALC_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

// dataFile is the chain persistence path, CALC_DATA_FILE. Empty means the
// chain lives in memory only.
func dataFile() string {
	return os.Getenv("CALC_DATA_FILE")
}
