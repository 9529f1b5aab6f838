package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	"hma/internal/platform/logger"
)

// LoadDotEnv loads env files into the process environment before any Conf is read
// Missing files are skipped; variables already set in the environment win
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			logger.Get().Warn().Err(err).Str("file", f).Msg("dotenv load failed")
		}
	}
}
