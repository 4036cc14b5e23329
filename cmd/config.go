package main

import (
	"fmt"
	"time"
)

type Config struct {
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	JWTClientID          string        `env:"JWT_CLIENT_ID,required=true"`
	VerifyTimeout        time.Duration `env:"VERIFY_TIMEOUT,default=5s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	AllowedOrigins       []string      `env:"ALLOWED_ORIGINS"`
	CensoredWordsPath    *string       `env:"CENSORED_WORDS_PATH"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	DebugPort            *int          `env:"DEBUG_PORT"`
}

func characterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
