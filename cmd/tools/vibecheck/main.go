package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/vibecheck/backend/internal/logging"
)

func main() {
	log := logging.NewLogger("cli")
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file, using system environment variables")
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
