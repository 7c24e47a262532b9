package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/soundprediction/kgpath/cmd/kgpath"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	if err := kgpath.Execute(); err != nil {
		os.Exit(1)
	}
}
