package main

import (
	"context"
	"os/signal"
	"syscall"

	"hma/internal/modkit/bootstrap"
	"hma/internal/modkit/module"
	"hma/internal/platform/logger"

	xmod "hma/internal/services/exchanges/module"
	indexmod "hma/internal/services/indexer/module"
	"hma/internal/services/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, "worker")
	if err != nil {
		logger.Get().Panic().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()
	l := logger.Get()

	xm := xmod.New(rt.Deps)
	im := indexmod.New(rt.Deps)

	xo := xmod.FromConfig(rt.Config)
	ixo := indexmod.FromConfig(rt.Config)
	w := worker.New(
		rt.Store.Locker(),
		module.MustPortsOf[xmod.Ports](xm).Runner,
		module.MustPortsOf[indexmod.Ports](im).Builder,
		worker.Config{FetchEvery: xo.Interval, BuildEvery: ixo.Interval},
	)

	l.Info().Dur("fetch_every", xo.Interval).Dur("build_every", ixo.Interval).Msg("worker starting")
	if err := w.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("worker failed")
	}
	l.Info().Msg("worker stopped")
}
