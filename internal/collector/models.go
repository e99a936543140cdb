package collector

import (
	"fmt"
	"time"

	"hitqueue/internal/engine"
)

const (
	HitTypePageview  = "pageview"
	HitTypeEvent     = "event"
	HitTypeException = "exception"
	HitTypeTiming    = "timing"
	HitTypeParams    = "params"
)

// TrackRequest is the body of POST /api/v1/track.
type TrackRequest struct {
	// EngineID selects a configured engine. Empty means the default one.
	EngineID string             `json:"engine_id"`
	App      engine.Application `json:"app" binding:"required"`
	Type     string             `json:"type" binding:"required,oneof=pageview event exception timing params"`

	Path     string `json:"path,omitempty"`
	Title    string `json:"title,omitempty"`
	Hostname string `json:"hostname,omitempty"`

	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
	Label    string `json:"label,omitempty"`
	Value    *int64 `json:"value,omitempty"`

	Description string `json:"description,omitempty"`
	Fatal       bool   `json:"fatal,omitempty"`

	Variable   string `json:"variable,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Params map[string]string `json:"params,omitempty"`
}

type TrackResponse struct {
	Status   string `json:"status"`
	EngineID string `json:"engine_id"`
}

// Modules converts the request into tracking modules. Extra params are
// applied after the typed module.
func (r TrackRequest) Modules() ([]engine.Module, error) {
	var m engine.Module
	switch r.Type {
	case HitTypePageview:
		m = engine.Pageview{Path: r.Path, Title: r.Title, Hostname: r.Hostname}
	case HitTypeEvent:
		m = engine.Event{Category: r.Category, Action: r.Action, Label: r.Label, Value: r.Value}
	case HitTypeException:
		m = engine.Exception{Description: r.Description, Fatal: r.Fatal}
	case HitTypeTiming:
		m = engine.Timing{
			Category: r.Category,
			Variable: r.Variable,
			Duration: time.Duration(r.DurationMs) * time.Millisecond,
			Label:    r.Label,
		}
	case HitTypeParams:
		if len(r.Params) == 0 {
			return nil, fmt.Errorf("params hit without params")
		}
		return []engine.Module{engine.Params(r.Params)}, nil
	default:
		return nil, fmt.Errorf("unknown hit type %q", r.Type)
	}

	modules := []engine.Module{m}
	if len(r.Params) > 0 {
		modules = append(modules, engine.Params(r.Params))
	}
	return modules, nil
}
