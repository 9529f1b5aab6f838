package text

import (
	"hma/internal/core/normalize"
	"hma/internal/core/signal"
	"hma/internal/core/signal/exact"
)

// URLName is the registered name of the url signal type
const URLName = "url"

// URL matches canonical urls exactly
type URL struct{}

// NewURL returns the url signal type
func NewURL() URL { return URL{} }

func (URL) Name() string           { return URLName }
func (URL) ContentTypes() []string { return []string{signal.ContentURL} }

// Validate lower cases and strips the scheme
func (URL) Validate(s string) (string, error) {
	out := normalize.URL(s)
	if out == "" {
		return "", signal.Invalid(URLName, "empty url")
	}
	return out, nil
}

func (u URL) Compare(a, b string, _ float64) (signal.Comparison, error) {
	ca, err := u.Validate(a)
	if err != nil {
		return signal.Comparison{}, err
	}
	cb, err := u.Validate(b)
	if err != nil {
		return signal.Comparison{}, err
	}
	if ca == cb {
		return signal.Comparison{Match: true}, nil
	}
	return signal.Comparison{Distance: 1}, nil
}

func (URL) NewIndex() signal.Index { return exact.NewIndex(URLName) }

func (URL) LoadIndex(data []byte) (signal.Index, error) { return exact.Load(URLName, data) }

func (URL) Examples() []string {
	return []string{"www.facebook.com/post/123", "example.com/a/b?c=d"}
}

var _ signal.SignalType = URL{}
