package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		DatabaseURL:  getEnv("DATABASE_URL", "apiary.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
	}

	// The key may also be supplied at runtime through the preferences store,
	// so an empty value here is not fatal. Generation calls fail closed until
	// a key is configured one way or the other.
	if AppConfig.GeminiAPIKey == "" {
		log.Println("GEMINI_API_KEY is not set; generation calls will be rejected until a key is configured")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
