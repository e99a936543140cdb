// Package recovery resumes requests left in the queue store by a
// previous run.
package recovery

import (
	"context"

	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/internal/store"
	"hitqueue/pkg/metrics"
)

type Outcome string

const (
	// Resumed means the request was handed to its engine.
	Resumed Outcome = "resumed"
	// Deferred means its engine does not exist yet; the request is held
	// until the engine is created.
	Deferred Outcome = "deferred"
	// Skipped means the request was already live.
	Skipped Outcome = "skipped_live"
)

// Resumer routes a stored request to its owning engine.
type Resumer interface {
	Resume(r *request.Prepared) Outcome
}

// LiveSet reports requests currently owned by this process.
type LiveSet interface {
	IsLive(id string) bool
}

type Result struct {
	Scanned     int `json:"scanned"`
	SkippedLive int `json:"skipped_live"`
	Resumed     int `json:"resumed"`
	Deferred    int `json:"deferred"`
}

type Loader struct {
	store   store.QueueStore
	live    LiveSet
	resumer Resumer
	logger  logger.Logger
}

func NewLoader(st store.QueueStore, live LiveSet, resumer Resumer, log logger.Logger) *Loader {
	return &Loader{store: st, live: live, resumer: resumer, logger: log}
}

// Load scans the store once. Calling it again resumes only what is
// neither live nor already deferred, so repeated calls are safe.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var res Result

	for r := range l.store.All(ctx) {
		res.Scanned++

		outcome := Skipped
		if !l.live.IsLive(r.ID) {
			outcome = l.resumer.Resume(r)
		}
		metrics.IncRecovery(string(outcome))

		switch outcome {
		case Resumed:
			res.Resumed++
		case Deferred:
			res.Deferred++
		default:
			res.SkippedLive++
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	l.logger.Infow("Queue store recovery finished",
		"scanned", res.Scanned,
		"skipped_live", res.SkippedLive,
		"resumed", res.Resumed,
		"deferred", res.Deferred,
	)
	return res, nil
}
