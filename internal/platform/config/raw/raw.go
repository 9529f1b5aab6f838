// Package raw reads the environment for the logger's own bootstrap. It must
// not import the logger, which config does
package raw

import (
	"os"
	"strconv"
	"strings"
)

// Conf is a prefixed view over the environment
type Conf struct{ prefix string }

func New() Conf { return Conf{} }

func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// Get returns the trimmed value, def when unset or blank
func (c Conf) Get(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(c.prefix + key)); v != "" {
		return v
	}
	return def
}

// GetBool accepts 1, true and yes in any case. Any other set value is false
func (c Conf) GetBool(key string, def bool) bool {
	switch v := strings.ToLower(c.Get(key, "")); v {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// GetInt returns a non-negative integer, def when unset or not one
func (c Conf) GetInt(key string, def int) int {
	n, err := strconv.Atoi(c.Get(key, ""))
	if err != nil || n < 0 {
		return def
	}
	return n
}
