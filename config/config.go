package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PortalBaseURL  string
	PortalUsername string
	PortalPassword string

	QuotesURL    string
	CompaniesURL string
	SnapshotURL  string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PageSize        int
	RateLimitMs     int
	MaxRetries      int
	SessionWaitSec  int
	DownloadWaitSec int

	DownloadDir   string
	CSVOutputPath string
	ChromeBin     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PortalBaseURL:  getEnv("PORTAL_BASE_URL", "https://online.calyxsec.com/home/"),
		PortalUsername: getEnv("PORTAL_USERNAME", ""),
		PortalPassword: getEnv("PORTAL_PASSWORD", ""),

		QuotesURL:    getEnv("QUOTES_URL", "https://screener-facade.tradingview.com/screener-facade/api/v1/quotes"),
		CompaniesURL: getEnv("COMPANIES_URL", "https://www.ngnmarket.com/api/companies"),
		SnapshotURL:  getEnv("SNAPSHOT_URL", "https://www.ngnmarket.com/api/market/snapshot"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "marketdata"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "marketdata123"),
		PostgresDB:       getEnv("POSTGRES_DB", "marketdata_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PageSize:        getEnvInt("PAGE_SIZE", 100),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 300),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		SessionWaitSec:  getEnvInt("SESSION_WAIT_SEC", 30),
		DownloadWaitSec: getEnvInt("DOWNLOAD_WAIT_SEC", 60),

		DownloadDir:   getEnv("DOWNLOAD_DIR", ""),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/report_rows.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
