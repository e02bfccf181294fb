package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var fileEnv map[string]string

// SetupEnvFile loads a .env file when one exists. Containerized and CI runs
// configure everything through the process environment, so a missing file is
// not an error.
func SetupEnvFile() {
	for _, path := range []string{".env", "../../.env"} {
		if loaded, err := godotenv.Read(path); err == nil {
			fileEnv = loaded
			return
		}
	}
}

// GetEnv resolves key from the loaded .env file first, then the process
// environment, then the default.
func GetEnv(key, def string) string {
	if val, ok := fileEnv[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt resolves an integer setting, falling back on parse failure.
func GetEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return v
	}
	return def
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
