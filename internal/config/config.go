package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads the .env file specified by AGORA_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("AGORA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// FacilitatorURL is the remote payment verification/settlement service.
func FacilitatorURL() string {
	u := os.Getenv("FACILITATOR_URL")
	if u == "" {
		return "https://facilitator.agoradata.dev"
	}
	return u
}

// PaymentNetwork names the settlement network advertised in challenges.
func PaymentNetwork() string {
	n := os.Getenv("PAYMENT_NETWORK")
	if n == "" {
		return "base-sepolia"
	}
	return n
}

// RedisURL, when set, moves the payment challenge cache to a shared Redis so
// any instance can verify a challenge another instance issued. Empty means
// single-process in-memory cache.
func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// MarketBaseURL is where buyer agents shop. Defaults to this process's own
// listen address.
func MarketBaseURL() string {
	u := os.Getenv("MARKET_BASE_URL")
	if u == "" {
		return fmt.Sprintf("http://localhost:%d", ServerPort())
	}
	return u
}

// CycleInterval is the period between acquisition cycles of one agent.
func CycleInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("CYCLE_INTERVAL"))
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// WalletFaucetAmount is the USDC balance credited to freshly provisioned
// wallets on test networks.
func WalletFaucetAmount() decimal.Decimal {
	amt, err := decimal.NewFromString(os.Getenv("WALLET_FAUCET_AMOUNT"))
	if err != nil || amt.IsNegative() {
		return decimal.NewFromInt(10)
	}
	return amt
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
