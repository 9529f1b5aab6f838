package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hma/internal/modkit/bootstrap"
	"hma/internal/modkit/module"
	"hma/internal/platform/store/schema"

	banksmod "hma/internal/services/banks/module"
	xmod "hma/internal/services/exchanges/module"
	indexmod "hma/internal/services/indexer/module"
)

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageErr exits 2
func usageErr(format string, a ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

// partialErr exits 3: the command ran but some collabs or builds failed
func partialErr(format string, a ...any) error {
	return &exitError{code: 3, err: fmt.Errorf(format, a...)}
}

// exitCode maps a command error onto the process exit code. Errors that
// reach here unmarked come from cobra's own flag and argument parsing
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

// openPorts bootstraps the process and builds the module ports the cli drives
func openPorts(ctx context.Context) (*ports, func(), error) {
	rt, err := bootstrap.Open(ctx, "cli")
	if err != nil {
		return nil, nil, err
	}
	bm := banksmod.New(rt.Deps)
	xm := xmod.New(rt.Deps)
	im := indexmod.New(rt.Deps)
	xp := module.MustPortsOf[xmod.Ports](xm)
	ip := module.MustPortsOf[indexmod.Ports](im)
	p := &ports{
		banks:     module.MustPortsOf[banksmod.Ports](bm).Service,
		exchanges: xp.Service,
		runner:    xp.Runner,
		builder:   ip.Builder,
		indexes:   ip.Store,
		signals:   rt.Deps.Signals,
		apis:      rt.Deps.Exchanges,
		migrate: func(ctx context.Context) error {
			return schema.Apply(ctx, rt.Store.PG)
		},
	}
	return p, rt.Close, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root := newRootCmd(openPorts)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hma:", err)
	}
	os.Exit(exitCode(err))
}
