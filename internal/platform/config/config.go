// Package config reads typed settings from the environment.
//
// Must* getters panic through the logger when a key is missing or
// malformed; they are meant for process startup. May* getters fall back to
// a default and log a warning when the value does not parse.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"hma/internal/platform/logger"
)

// Conf is a prefixed view over the environment, e.g. New().Prefix("CORE_").Prefix("API_")
type Conf struct{ prefix string }

func New() Conf { return Conf{} }

func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) raw(k string) string { return strings.TrimSpace(os.Getenv(c.key(k))) }

// must parses a required key or panics naming it
func must[T any](c Conf, key string, parse func(string) (T, error)) T {
	s := c.raw(key)
	if s == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Panic().Err(err).Str("key", c.key(key)).Str("value", s).Msg("invalid env value")
	}
	return v
}

// may parses an optional key, keeping def when unset or unparsable
func may[T any](c Conf, key string, def T, parse func(string) (T, error)) T {
	s := c.raw(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().Err(err).Str("key", c.key(key)).Str("value", s).Interface("default", def).
			Msg("invalid env value; using default")
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }
func parseInt64(s string) (int64, error)   { return strconv.ParseInt(s, 10, 64) }
func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err == nil && !u.IsAbs() {
		err = fmt.Errorf("%q is not absolute", s)
	}
	return u, err
}

func parsePort(s string) (string, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("port %q outside 1..65535", s)
	}
	return ":" + s, nil
}

func (c Conf) MustString(key string) string          { return must(c, key, parseString) }
func (c Conf) MustInt(key string) int                { return must(c, key, strconv.Atoi) }
func (c Conf) MustBool(key string) bool              { return must(c, key, strconv.ParseBool) }
func (c Conf) MustDuration(key string) time.Duration { return must(c, key, time.ParseDuration) }
func (c Conf) MustURL(key string) *url.URL           { return must(c, key, parseURL) }

// MustPort validates a TCP port and returns it as a listen address, "4000" -> ":4000"
func (c Conf) MustPort(key string) string { return must(c, key, parsePort) }

// Require panics on the first of keys that is unset or blank
func (c Conf) Require(keys ...string) {
	for _, k := range keys {
		must(c, k, parseString)
	}
}

func (c Conf) MayString(key, def string) string           { return may(c, key, def, parseString) }
func (c Conf) MayInt(key string, def int) int             { return may(c, key, def, strconv.Atoi) }
func (c Conf) MayInt64(key string, def int64) int64       { return may(c, key, def, parseInt64) }
func (c Conf) MayFloat64(key string, def float64) float64 { return may(c, key, def, parseFloat) }
func (c Conf) MayBool(key string, def bool) bool          { return may(c, key, def, strconv.ParseBool) }
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return may(c, key, def, time.ParseDuration)
}

// MayCSV splits a comma list, dropping blanks. def when nothing is left
func (c Conf) MayCSV(key string, def []string) []string {
	var out []string
	for _, p := range strings.Split(c.raw(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum returns the value as written when it matches one of allowed
// case-insensitively, def when unset. Anything else panics
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	if v == "" {
		return v
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return v
		}
	}
	logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	return ""
}

// MayRatio reads a float and clamps it to [0,1]
func (c Conf) MayRatio(key string, def float64) float64 {
	v := c.MayFloat64(key, def)
	if v < 0 || v > 1 {
		logger.Get().Warn().Str("key", c.key(key)).Float64("value", v).Msg("ratio clamped to [0,1]")
	}
	return min(max(v, 0), 1)
}
