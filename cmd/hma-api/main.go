// @title         HMA API
// @version       0.1.0
// @description   Hash matching: banks, exchanges, hashing and lookups

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"hma/internal/modkit/bootstrap"
	"hma/internal/platform/logger"
	phttp "hma/internal/platform/net/http"

	"hma/internal/services/api"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, "api")
	if err != nil {
		logger.Get().Panic().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()
	l := logger.Get()

	// service-scoped config for HTTP etc (CORE_API_*)
	apiCfg := rt.Config.Prefix("CORE_API_")

	// http server (reads CORE_API_PORT and the timeouts)
	srv := phttp.NewServer(rt.Config.Prefix("CORE_"))

	mounted := api.Mount(
		srv.Router(),
		api.Options{
			Config:         rt.Config,
			Store:          rt.Store,
			Signals:        rt.Deps.Signals,
			Exchanges:      rt.Deps.Exchanges,
			Blobs:          rt.Deps.Blobs,
			Hasher:         rt.Deps.Hasher,
			Roles:          api.RolesFromConfig(rt.Config),
			CORSOrigins:    apiCfg.MayCSV("CORS_ORIGINS", nil),
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", false),
		},
	)
	defer func() {
		if err := mounted.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close modules")
		}
	}()
	mounted.Start(ctx)

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			l.Error().Err(err).Msg("http shutdown")
		}
	}()

	// run
	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
