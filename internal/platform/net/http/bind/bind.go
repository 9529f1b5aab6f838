// Package bind decodes and validates JSON request bodies
package bind

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

// ValidatorSvc is the process-wide validator and its english translator
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *ValidatorSvc
)

// Get returns the shared validator, building it on first use. Messages name
// fields by their json tag
func Get() *ValidatorSvc {
	once.Do(func() {
		loc := en.New()
		trans, _ := ut.New(loc, loc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = entrans.RegisterDefaultTranslations(v, trans)
		translate(v, trans, "min", "{0} must be at least {1}")
		translate(v, trans, "max", "{0} must be at most {1}")

		svc = &ValidatorSvc{Validator: v, Translator: trans}
	})
	return svc
}

// RegisterValidation adds a custom tag. Failures read "<field> is not a valid <tag>"
func RegisterValidation(tag string, fn validator.Func) error {
	s := Get()
	if err := s.Validator.RegisterValidation(tag, fn); err != nil {
		return err
	}
	translate(s.Validator, s.Translator, tag, "{0} is not a valid "+tag)
	return nil
}

func translate(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}

// JSONOptions tunes ParseJSON. The zero value is strict: unknown fields and
// empty bodies are errors
type JSONOptions struct {
	MaxBytes       int64 // 1MB when zero
	AllowUnknown   bool
	AllowEmptyBody bool
}

// ParseJSON decodes one JSON document into T and validates it.
// Decode problems are ErrorCodeJSON; failed validate tags are
// ErrorCodeValidation naming the first bad field
func ParseJSON[T any](r *http.Request, opts ...JSONOptions) (T, error) {
	var zero, dst T
	var o JSONOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 1 << 20
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			logger.Get().Warn().Err(err).Msg("close request body")
		}
	}()

	body := io.LimitReader(r.Body, o.MaxBytes+1)
	var first [1]byte
	n, _ := io.ReadFull(body, first[:])
	if n == 0 {
		if o.AllowEmptyBody || r.Method == http.MethodGet || r.Method == http.MethodDelete {
			return dst, nil
		}
		return zero, perr.JSONErrf("empty body")
	}
	counted := &countingReader{r: io.MultiReader(bytes.NewReader(first[:n]), body)}

	dec := json.NewDecoder(counted)
	if !o.AllowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&dst); err != nil {
		if counted.n > o.MaxBytes {
			return zero, perr.JSONErrf("body exceeds %d bytes", o.MaxBytes)
		}
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, perr.JSONErrf("unexpected trailing data")
	}

	if err := Get().Validator.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			// non-struct T
			logger.Get().Error().Err(err).Msg("validator misuse")
			return zero, perr.JSONErrf("validation error")
		}
		fe := fields[0]
		return zero, perr.WithField(perr.Validationf("%s", fe.Translate(Get().Translator)), fe.Field())
	}
	return dst, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
