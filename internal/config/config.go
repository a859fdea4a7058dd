package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	DataDir    string
	LockWait   time.Duration
	CORSOrigin string
	LogLevel   string
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		DataDir:    getenv("DOCFLOW_DATA_DIR", "./data/storage"),
		LockWait:   time.Duration(getenvInt("DOCFLOW_LOCK_WAIT_MS", 2000)) * time.Millisecond,
		CORSOrigin: getenv("DOCFLOW_CORS_ORIGIN", "*"),
		LogLevel:   getenv("DOCFLOW_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
