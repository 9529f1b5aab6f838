package signal

import (
	"fmt"
	"sort"
)

// Registry holds installed signal and content types. It is immutable after NewRegistry
type Registry struct {
	signals  map[string]SignalType
	order    []string
	contents map[string]ContentType
	corder   []string
}

// NewRegistry installs the given types. Duplicate names are rejected
func NewRegistry(contents []ContentType, signals ...SignalType) (*Registry, error) {
	r := &Registry{
		signals:  make(map[string]SignalType, len(signals)),
		contents: make(map[string]ContentType, len(contents)),
	}
	for _, c := range contents {
		if _, dup := r.contents[c.Name]; dup {
			return nil, fmt.Errorf("signal: duplicate content type %q", c.Name)
		}
		r.contents[c.Name] = c
		r.corder = append(r.corder, c.Name)
	}
	for _, s := range signals {
		if _, dup := r.signals[s.Name()]; dup {
			return nil, fmt.Errorf("signal: duplicate signal type %q", s.Name())
		}
		for _, ct := range s.ContentTypes() {
			if _, ok := r.contents[ct]; !ok {
				return nil, fmt.Errorf("signal: %s references unknown content type %q", s.Name(), ct)
			}
		}
		r.signals[s.Name()] = s
		r.order = append(r.order, s.Name())
	}
	return r, nil
}

// Signal returns the named signal type
func (r *Registry) Signal(name string) (SignalType, bool) {
	s, ok := r.signals[name]
	return s, ok
}

// Content returns the named content type
func (r *Registry) Content(name string) (ContentType, bool) {
	c, ok := r.contents[name]
	return c, ok
}

// SignalTypes returns every installed signal type in install order
func (r *Registry) SignalTypes() []SignalType {
	out := make([]SignalType, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.signals[n])
	}
	return out
}

// ContentTypes returns every content type in install order
func (r *Registry) ContentTypes() []ContentType {
	out := make([]ContentType, 0, len(r.corder))
	for _, n := range r.corder {
		out = append(out, r.contents[n])
	}
	return out
}

// EnabledFor returns the signal types that apply to contentType, in install order
// a disabled or unknown content type yields nothing
func (r *Registry) EnabledFor(contentType string) []SignalType {
	c, ok := r.contents[contentType]
	if !ok || !c.Enabled {
		return nil
	}
	var out []SignalType
	for _, n := range r.order {
		s := r.signals[n]
		for _, ct := range s.ContentTypes() {
			if ct == contentType {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// ContentTypeOf returns the single content type shared by the given signal type names
// ok is false when the names span more than one content type or none at all
func (r *Registry) ContentTypeOf(names ...string) (string, bool) {
	seen := map[string]struct{}{}
	for _, n := range names {
		s, found := r.signals[n]
		if !found {
			continue
		}
		cts := s.ContentTypes()
		if len(cts) > 0 {
			seen[cts[0]] = struct{}{}
		}
	}
	if len(seen) != 1 {
		return "", false
	}
	for ct := range seen {
		return ct, true
	}
	return "", false
}

// Names returns sorted signal type names
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
