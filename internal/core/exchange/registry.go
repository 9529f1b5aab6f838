package exchange

import (
	"fmt"
	"sort"
)

// Registry holds exchange APIs by name
type Registry struct {
	apis map[string]API
}

// NewRegistry installs apis, rejecting duplicate names
func NewRegistry(apis ...API) (*Registry, error) {
	r := &Registry{apis: make(map[string]API, len(apis))}
	for _, a := range apis {
		if _, dup := r.apis[a.Name()]; dup {
			return nil, fmt.Errorf("exchange: duplicate api %q", a.Name())
		}
		r.apis[a.Name()] = a
	}
	return r, nil
}

// Get returns the named API
func (r *Registry) Get(name string) (API, bool) {
	a, ok := r.apis[name]
	return a, ok
}

// Names returns sorted API names
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.apis))
	for n := range r.apis {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SupportsAuth reports whether the named API takes credentials
func (r *Registry) SupportsAuth(name string) bool {
	a, ok := r.apis[name]
	if !ok {
		return false
	}
	_, ok = a.(Authenticated)
	return ok
}
