// Package builtin installs the signal and content types that ship with hma
package builtin

import (
	"fmt"
	"sort"

	"hma/internal/core/signal"
	"hma/internal/core/signal/md5"
	"hma/internal/core/signal/pdq"
	"hma/internal/core/signal/text"
	"hma/internal/core/signal/vpdq"
)

// Options selects what the registry installs on top of the static manifest
type Options struct {
	// DisabledContent names content types to switch off
	DisabledContent []string
	// Extensions names optional signal types to install, see Extensions()
	Extensions []string
}

// ContentTypes lists every content type, all enabled
func ContentTypes() []signal.ContentType {
	return []signal.ContentType{
		{Name: signal.ContentPhoto, Enabled: true},
		{Name: signal.ContentVideo, Enabled: true},
		{Name: signal.ContentText, Enabled: true},
		{Name: signal.ContentURL, Enabled: true},
	}
}

// SignalTypes lists the default signal types in install order
func SignalTypes() []signal.SignalType {
	return []signal.SignalType{
		pdq.New(),
		vpdq.New(),
		md5.Video(),
		text.NewRawText(),
		text.NewURL(),
	}
}

// Extensions lists the optional signal types by name
func Extensions() map[string]signal.SignalType {
	return map[string]signal.SignalType{
		md5.PhotoName: md5.Photo(),
	}
}

// ExtensionNames returns the optional type names, sorted
func ExtensionNames() []string {
	ext := Extensions()
	out := make([]string, 0, len(ext))
	for n := range ext {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry builds the process registry from the manifest plus o
func Registry(o Options) (*signal.Registry, error) {
	contents := ContentTypes()
	for i := range contents {
		for _, d := range o.DisabledContent {
			if contents[i].Name == d {
				contents[i].Enabled = false
			}
		}
	}
	types := SignalTypes()
	ext := Extensions()
	for _, n := range o.Extensions {
		st, ok := ext[n]
		if !ok {
			return nil, fmt.Errorf("builtin: unknown signal type extension %q", n)
		}
		types = append(types, st)
	}
	return signal.NewRegistry(contents, types...)
}

// All returns every installable signal type, used by tests and tooling
func All() []signal.SignalType {
	out := SignalTypes()
	for _, n := range ExtensionNames() {
		out = append(out, Extensions()[n])
	}
	return out
}
