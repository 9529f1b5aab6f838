// Package logger provides a zerolog wrapper with opinionated defaults and
// request, collab and signal type scoped logging
package logger

import (
	"context"
	"io"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hma/internal/platform/config/raw"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Options configures the logger
type Options struct {
	Level        string
	Format       string
	Service      string
	Component    string
	Writer       io.Writer
	WithCaller   bool
	SampleEvery  int
	StaticFields map[string]string
}

// FromEnv builds Options using the logging-free raw config view (no cycles)
func FromEnv() Options {
	rc := raw.New().Prefix("LOG_")
	return Options{
		Level:       strings.ToLower(rc.Get("LEVEL", "info")),
		Format:      strings.ToLower(rc.Get("FORMAT", "console")),
		Service:     rc.Get("SERVICE", ""),
		Component:   rc.Get("COMPONENT", ""),
		WithCaller:  rc.GetBool("CALLER", false),
		SampleEvery: rc.GetInt("SAMPLE_EVERY", 0),
	}
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger] // internal storage of the root logger
	inited atomic.Bool
)

// Logger is the project-wide logging type - today it's just a zerolog.Logger, but it can be swapped later
type Logger = zerolog.Logger

// Get returns the process-wide root logger as a pointer
func Get() *Logger {
	if !inited.Load() {
		Init(FromEnv())
	}
	return root.Load()
}

// Init builds the root logger from opt. Only the first call takes effect
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano
		l := build(opt)
		root.Store(&l)
		inited.Store(true)
	})
}

func build(opt Options) zerolog.Logger {
	w := opt.Writer
	if w == nil {
		w = os.Stdout
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	fields := map[string]string{"service": opt.Service, "component": opt.Component}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fields["go_version"] = bi.GoVersion
	}
	maps.Copy(fields, opt.StaticFields)

	c := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if v := fields[k]; v != "" {
			c = c.Str(k, v)
		}
	}
	if opt.WithCaller {
		c = c.Caller()
	}
	l := c.Logger()
	if opt.SampleEvery > 1 {
		l = l.Sample(&zerolog.BasicSampler{N: uint32(opt.SampleEvery)})
	}
	return l
}

// parseLevel accepts zerolog level names plus "warning"; anything else is info
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

type ctxKey struct{ name string }

var (
	keyRequestID  = ctxKey{"req_id"}
	keyCollab     = ctxKey{"collab"}
	keySignalType = ctxKey{"signal_type"}
)

// WithRequest annotates ctx with the request id
func WithRequest(ctx context.Context, reqID string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, keyRequestID, reqID)
	}
	return ctx
}

// WithCollab annotates ctx with the collaboration a fetch cycle is working on
func WithCollab(ctx context.Context, collab string) context.Context {
	if collab != "" {
		ctx = context.WithValue(ctx, keyCollab, collab)
	}
	return ctx
}

// WithSignalType annotates ctx with the signal type a build or lookup is working on
func WithSignalType(ctx context.Context, st string) context.Context {
	if st != "" {
		ctx = context.WithValue(ctx, keySignalType, st)
	}
	return ctx
}

// C returns a child logger enriched from ctx (request_id, collab, signal_type)
func C(ctx context.Context) *Logger {
	l := Get()
	builder := l.With()
	for _, f := range []struct {
		key   ctxKey
		field string
	}{
		{keyRequestID, "request_id"},
		{keyCollab, "collab"},
		{keySignalType, "signal_type"},
	} {
		if s, ok := ctx.Value(f.key).(string); ok && s != "" {
			builder = builder.Str(f.field, s)
		}
	}
	ll := builder.Logger()
	return &ll
}

// Named returns a child logger with a component field
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}
