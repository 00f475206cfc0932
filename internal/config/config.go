package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Cache database
	SQLiteDBPath string

	// Record source
	SourceBackend string // file | http | sheets
	PledgesPath   string
	PaymentsPath  string
	PledgesURL    string
	PaymentsURL   string

	// Google Sheets source
	GoogleSpreadsheetID string
	PledgesSheet        string
	PaymentsSheet       string

	// Currency conversion
	FXBackend      string // frankfurter | static
	FrankfurterURL string
	FXStaticRates  string // "EUR=1.08,GBP=1.27"
	FXConcurrency  int

	// AMQP (optional; empty URL disables messaging)
	AMQPURL      string
	AMQPExchange string
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8082"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/donorpulse.db"),

		SourceBackend: getEnv("SOURCE_BACKEND", "file"),
		PledgesPath:   getEnv("PLEDGES_PATH", "./data/one-for-the-world-pledges.json"),
		PaymentsPath:  getEnv("PAYMENTS_PATH", "./data/one-for-the-world-payments.json"),
		PledgesURL:    getEnv("PLEDGES_URL", ""),
		PaymentsURL:   getEnv("PAYMENTS_URL", ""),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		PledgesSheet:        getEnv("GOOGLE_PLEDGES_SHEET", "Pledges"),
		PaymentsSheet:       getEnv("GOOGLE_PAYMENTS_SHEET", "Payments"),

		FXBackend:      getEnv("FX_BACKEND", "frankfurter"),
		FrankfurterURL: getEnv("FRANKFURTER_URL", "https://api.frankfurter.dev"),
		FXStaticRates:  getEnv("FX_STATIC_RATES", ""),
		FXConcurrency:  getEnvInt("FX_CONCURRENCY", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "donorpulse"),
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.SourceBackend {
	case "file":
		if c.PledgesPath == "" || c.PaymentsPath == "" {
			problems = append(problems, "file backend requires PLEDGES_PATH and PAYMENTS_PATH")
		}
	case "http":
		for name, raw := range map[string]string{"PLEDGES_URL": c.PledgesURL, "PAYMENTS_URL": c.PaymentsURL} {
			if raw == "" {
				problems = append(problems, fmt.Sprintf("http backend requires %s", name))
				continue
			}
			if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				problems = append(problems, fmt.Sprintf("invalid %s '%s'", name, raw))
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			problems = append(problems, "sheets backend requires GOOGLE_SPREADSHEET_ID")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid source backend '%s': must be one of [file http sheets]", c.SourceBackend))
	}

	switch c.FXBackend {
	case "frankfurter":
		if c.FrankfurterURL == "" {
			problems = append(problems, "frankfurter backend requires FRANKFURTER_URL")
		}
	case "static":
		if _, err := ParseStaticRates(c.FXStaticRates); err != nil {
			problems = append(problems, fmt.Sprintf("invalid FX_STATIC_RATES: %v", err))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid fx backend '%s': must be one of [frankfurter static]", c.FXBackend))
	}

	if c.FXConcurrency < 1 || c.FXConcurrency > 64 {
		problems = append(problems, fmt.Sprintf("invalid fx concurrency %d: must be between 1 and 64", c.FXConcurrency))
	}

	if c.SQLiteDBPath == "" {
		problems = append(problems, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				problems = append(problems, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ParseStaticRates parses "EUR=1.08,GBP=1.27" into a currency->rate map.
func ParseStaticRates(s string) (map[string]float64, error) {
	rates := map[string]float64{}
	if strings.TrimSpace(s) == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(s, ",") {
		code, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("malformed rate pair %q", pair)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("malformed rate for %q", code)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
