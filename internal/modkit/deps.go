// Package modkit provides module wiring and core deps
package modkit

import (
	"hma/internal/core/exchange"
	"hma/internal/core/hashing"
	"hma/internal/core/signal"
	"hma/internal/modkit/repokit"
	"hma/internal/platform/blob"
	"hma/internal/platform/config"
	"hma/internal/platform/logger"
	"hma/internal/platform/store"
)

// Deps is what every module constructor receives. Optional members are nil
// when the process does not run the role that needs them
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse

	// Signals is the process signal and content type registry
	Signals *signal.Registry
	// Exchanges holds the installed exchange APIs
	Exchanges *exchange.Registry
	// Blobs is the index payload backend, nil keeps payloads in the signal_index row
	Blobs blob.Store
	// Hasher turns media into signals, nil when the hasher role is off
	Hasher *hashing.Hasher
}
