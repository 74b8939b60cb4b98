package main

import (
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
	"github.com/rs/zerolog/log"
)

type serverConfig struct {
	Host           string `default:"0.0.0.0"`
	Port           string `default:"5000"`
	ReferencePath  string `default:"assets/reference.png"`
	ProfilesPath   string
	DefaultProfile string `default:"geometry"`
	MaxUploadMB    int64  `default:"10"`
	LogLevel       string `default:"info"`
	LogHuman       bool
	LogDir         string
}

// loadConfig seeds the environment from ./.env when present (variables that
// are already set win) and overlays it on the defaults.
func loadConfig() serverConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("ignoring unreadable .env")
	}
	var cfg serverConfig
	defaults.SetDefaults(&cfg)

	envString(&cfg.Host, "HOST")
	envString(&cfg.Port, "PORT")
	envString(&cfg.ReferencePath, "REFERENCE_PATH")
	envString(&cfg.ProfilesPath, "PROFILES_PATH")
	envString(&cfg.DefaultProfile, "DEFAULT_PROFILE")
	envInt(&cfg.MaxUploadMB, "MAX_UPLOAD_MB")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.LogDir, "LOG_DIR")
	cfg.LogHuman = os.Getenv("LOG_HUMAN") == "1"
	return cfg
}

func (c serverConfig) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Int64("using", *dst).Msg("invalid number")
		return
	}
	*dst = n
}
