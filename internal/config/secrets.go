// Package config loads and validates the multi-user, multi-strategy
// configuration surface (spec §6): API credentials via .env, trading
// rules via two YAML documents.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Secrets holds values that must never appear in a YAML file.
type Secrets struct {
	TelegramToken  string
	TelegramChatID int64
	UseTestnet     bool
}

// LoadSecrets loads .env (if present — its absence is not an error, since
// a deployment may set these directly in the environment) and returns the
// process-wide secrets. Per-user API keys live in users.yaml's `keys`
// block instead, matching the original bot's per-user key pairs.
func LoadSecrets(envPath string) (Secrets, error) {
	if envPath == "" {
		envPath = ".env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return Secrets{}, err
		}
	}

	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)

	return Secrets{
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: chatID,
		UseTestnet:     os.Getenv("USE_TESTNET") == "true" || os.Getenv("USE_TESTNET") == "True",
	}, nil
}
