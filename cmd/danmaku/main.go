package main

import (
	"os"

	"github.com/azure/danmaku-digest-bot/internal/cli"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// A missing .env is fine; the environment is used as is
	_ = godotenv.Load()

	if err := cli.NewRoot(config.Load).Execute(); err != nil {
		logrus.Errorf("Command failed: %v", err)
		os.Exit(1)
	}
}
