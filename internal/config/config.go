package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/logger"
)

const MaxSlots = 64

type Config struct {
	ServerPort string
	LogLevel   string

	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBMigrate  bool

	SerialPort        string
	SerialBaudRate    int
	SerialReadTimeout time.Duration
	ReconnectInterval time.Duration
	// Simulate: nil = tự chọn (không có SerialPort thì mô phỏng)
	Simulate          *bool
	SimulationPeriod  time.Duration
	SimulationSeed    int64
	TotalSlots        int
	DefaultMode       domain.OperationMode
	HeartbeatInterval time.Duration
	CommandRetries    int
	PricingTimezone   string
	PricingLocation   *time.Location

	AWSEnabled         bool
	AWSRegion          string
	SQSCommandQueueURL string
	IoTMQTTEndpoint    string
	IoTStatusTopic     string
	LPREnabled         bool

	JWTSecret          string        // secret key cho JWT
	JWTExpirationHours time.Duration // thời gian hết hạn của JWT
}

// Load đọc .env (nếu có) rồi đọc biến môi trường.
func Load(envFiles ...string) *Config {
	log := logger.Component("config")
	err := godotenv.Load(envFiles...)
	if err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Cảnh báo: Không thể tải file .env")
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", "pgx"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "parking"),
		DBPassword: getEnv("DB_PASSWORD", "parking"),
		DBName:     getEnv("DB_NAME", "parking_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),
		DBMigrate:  getEnvBool("DB_MIGRATE", true),

		SerialPort:        getEnv("SERIAL_PORT", ""),
		SerialBaudRate:    getEnvInt("SERIAL_BAUDRATE", 115200),
		SerialReadTimeout: time.Duration(getEnvInt("SERIAL_READ_TIMEOUT_MS", 1000)) * time.Millisecond,
		ReconnectInterval: time.Duration(getEnvInt("SERIAL_RECONNECT_SECONDS", 5)) * time.Second,
		SimulationPeriod:  time.Duration(getEnvInt("SIMULATION_PERIOD_MS", 1500)) * time.Millisecond,
		SimulationSeed:    int64(getEnvInt("SIMULATION_SEED", 1)),
		TotalSlots:        getEnvInt("TOTAL_SLOTS", 3),
		DefaultMode:       domain.OperationMode(strings.ToLower(getEnv("DEFAULT_MODE", string(domain.ModeAuto)))),
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_SECONDS", 10)) * time.Second,
		CommandRetries:    getEnvInt("COMMAND_RETRIES", 2),
		PricingTimezone:   getEnv("PRICING_TIMEZONE", "UTC"),

		AWSEnabled:         getEnvBool("AWS_ENABLED", false),
		AWSRegion:          getEnv("AWS_REGION", "ap-southeast-1"),
		SQSCommandQueueURL: getEnv("SQS_COMMAND_QUEUE_URL", ""),
		IoTMQTTEndpoint:    getEnv("IOT_MQTT_ENDPOINT", ""),
		IoTStatusTopic:     getEnv("IOT_STATUS_TOPIC", "smart_parking/status"),
		LPREnabled:         getEnvBool("LPR_ENABLED", false),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-jwt-secret"),
		JWTExpirationHours: time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
	}

	switch strings.ToLower(getEnv("SERIAL_SIMULATION", "auto")) {
	case "true", "1", "yes":
		v := true
		cfg.Simulate = &v
	case "false", "0", "no":
		v := false
		cfg.Simulate = &v
	}
	return cfg
}

// Validate kiểm tra cấu hình không thể chạy được và nạp PricingLocation.
func (c *Config) Validate() error {
	if c.TotalSlots < 1 || c.TotalSlots > MaxSlots {
		return fmt.Errorf("TOTAL_SLOTS phải trong khoảng 1..%d, nhận %d", MaxSlots, c.TotalSlots)
	}
	if _, ok := domain.ParseOperationMode(string(c.DefaultMode)); !ok {
		return fmt.Errorf("DEFAULT_MODE không hợp lệ: %q", c.DefaultMode)
	}
	if c.SerialReadTimeout <= 0 {
		return fmt.Errorf("SERIAL_READ_TIMEOUT_MS phải > 0")
	}
	if c.ReconnectInterval <= 0 || c.SimulationPeriod <= 0 || c.HeartbeatInterval <= 0 {
		return fmt.Errorf("các khoảng thời gian serial/mô phỏng/heartbeat phải > 0")
	}
	if c.CommandRetries < 0 {
		return fmt.Errorf("COMMAND_RETRIES không được âm")
	}
	loc, err := time.LoadLocation(c.PricingTimezone)
	if err != nil {
		return fmt.Errorf("PRICING_TIMEZONE không hợp lệ: %w", err)
	}
	c.PricingLocation = loc
	return nil
}

// SimulationEnabled: bật mô phỏng khi bị ép hoặc khi không cấu hình cổng serial.
func (c *Config) SimulationEnabled() bool {
	if c.Simulate != nil {
		return *c.Simulate
	}
	return c.SerialPort == ""
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	logger.GetLogger().Debug().Str("key", key).Str("default", fallback).
		Msg("Biến môi trường không được đặt, sử dụng giá trị mặc định")
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, strconv.Itoa(fallback))
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logger.GetLogger().Warn().Str("key", key).Str("value", raw).
			Msg("Giá trị số không hợp lệ, dùng mặc định")
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	raw := getEnv(key, strconv.FormatBool(fallback))
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}
