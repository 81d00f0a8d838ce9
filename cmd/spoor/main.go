package main

import (
	"os"

	"spoor/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("spoor failed")
		os.Exit(1)
	}
}
