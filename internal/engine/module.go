package engine

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"hitqueue/internal/request"
)

// Module contributes parameters to an outgoing hit.
type Module interface {
	Apply(b *request.Builder) error
}

// Validator is implemented by modules with required fields. Track calls
// it before anything is built.
type Validator interface {
	Validate() error
}

// Finalizing is implemented by modules that need finalizers to run right
// before each transmission.
type Finalizing interface {
	Finalizers() []string
}

type Pageview struct {
	Path     string
	Title    string
	Hostname string
}

func (m Pageview) Validate() error {
	if m.Path == "" {
		return errors.New("pageview: path is required")
	}
	return nil
}

func (m Pageview) Apply(b *request.Builder) error {
	b.Set("t", "pageview").
		Set("dp", m.Path).
		SetIf("dt", m.Title).
		SetIf("dh", m.Hostname)
	return nil
}

type Event struct {
	Category string
	Action   string
	Label    string
	Value    *int64
}

func (m Event) Validate() error {
	if m.Category == "" {
		return errors.New("event: category is required")
	}
	if m.Action == "" {
		return errors.New("event: action is required")
	}
	if m.Value != nil && *m.Value < 0 {
		return errors.New("event: value must not be negative")
	}
	return nil
}

func (m Event) Apply(b *request.Builder) error {
	b.Set("t", "event").
		Set("ec", m.Category).
		Set("ea", m.Action).
		SetIf("el", m.Label)
	if m.Value != nil {
		b.Set("ev", strconv.FormatInt(*m.Value, 10))
	}
	return nil
}

type Exception struct {
	Description string
	Fatal       bool
}

// ExceptionFrom describes err. A nil err yields an empty description.
func ExceptionFrom(err error, fatal bool) Exception {
	m := Exception{Fatal: fatal}
	if err != nil {
		m.Description = err.Error()
	}
	return m
}

func (m Exception) Apply(b *request.Builder) error {
	fatal := "0"
	if m.Fatal {
		fatal = "1"
	}
	b.Set("t", "exception").
		SetIf("exd", m.Description).
		Set("exf", fatal)
	return nil
}

type Timing struct {
	Category string
	Variable string
	Duration time.Duration
	Label    string
}

func (m Timing) Validate() error {
	if m.Category == "" {
		return errors.New("timing: category is required")
	}
	if m.Variable == "" {
		return errors.New("timing: variable is required")
	}
	if m.Duration < 0 {
		return errors.New("timing: duration must not be negative")
	}
	return nil
}

func (m Timing) Apply(b *request.Builder) error {
	b.Set("t", "timing").
		Set("utc", m.Category).
		Set("utv", m.Variable).
		Set("utt", strconv.FormatInt(m.Duration.Milliseconds(), 10)).
		SetIf("utl", m.Label)
	return nil
}

// Params sets arbitrary parameters, in key order.
type Params map[string]string

func (m Params) Validate() error {
	for k := range m {
		if k == "" {
			return errors.New("params: empty key")
		}
	}
	return nil
}

func (m Params) Apply(b *request.Builder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, m[k])
	}
	return nil
}
