package module

import (
	"hma/internal/platform/config"
)

// Options holds configuration options for the bank store
type Options struct {
	DisableHorizonYear int
	MaxPageSize        int
}

// FromConfig reads bank options from the CORE_MATCH_ and CORE_API_ prefixes
func FromConfig(cfg config.Conf) Options {
	return Options{
		DisableHorizonYear: cfg.Prefix("CORE_MATCH_").MayInt("DISABLE_HORIZON_YEAR", 2200),
		MaxPageSize:        cfg.Prefix("CORE_API_").MayInt("MAX_PAGE_SIZE", 200),
	}
}
