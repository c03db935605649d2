package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	once sync.Once
	v    *viper.Viper
)

// env returns the shared viper instance. A .env file in the working directory (or the
// path in DOTENV_PATH) is loaded once; real environment variables always win.
func env() *viper.Viper {
	once.Do(func() {
		path := os.Getenv("DOTENV_PATH")
		if path == "" {
			path = ".env"
		}
		_ = godotenv.Load(path)

		v = viper.New()
		v.AutomaticEnv()
	})
	return v
}

func String(key, fallback string) string {
	s := strings.TrimSpace(env().GetString(key))
	if s == "" {
		return fallback
	}
	return s
}

func RequiredString(key string) (string, error) {
	s := strings.TrimSpace(env().GetString(key))
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func Port(key, fallback string) (string, error) {
	s := String(key, fallback)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, s)
	}
	return s, nil
}

// Int parses key as an integer, returning fallback when unset or malformed.
func Int(key string, fallback int) int {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	s := strings.ToLower(String(key, ""))
	switch s {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Duration accepts Go duration strings ("30s", "5m") or a bare number of seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// List splits a comma separated value, dropping blanks.
func List(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(String(key, fallback), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
