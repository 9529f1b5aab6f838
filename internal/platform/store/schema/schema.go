// Package schema embeds and applies the relational schema
package schema

import (
	"context"
	_ "embed"

	"hma/internal/platform/logger"
	"hma/internal/platform/store"
)

//go:embed schema.sql
var ddl string

// DDL returns the embedded schema text
func DDL() string { return ddl }

// Apply executes the schema inside one transaction
func Apply(ctx context.Context, db store.TxRunner) error {
	err := db.Tx(ctx, func(q store.RowQuerier) error {
		_, err := q.Exec(ctx, ddl)
		return err
	})
	if err != nil {
		return err
	}
	logger.Named("schema").Info().Msg("schema applied")
	return nil
}
