package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var once sync.Once
var Log zerolog.Logger

func configureLogger() {
	zerolog.TimeFieldFormat = TimeFormat

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: TimeFormat,
	}

	Log = zerolog.New(output).With().Timestamp().Logger()
}

// GetLogger trả về logger dùng chung của tiến trình.
func GetLogger() *zerolog.Logger {
	once.Do(configureLogger)
	return &Log
}

// SetLevel đổi mức log toàn cục; chuỗi không hợp lệ thì giữ mức info.
func SetLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// Component trả về logger con gắn trường "component".
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}
