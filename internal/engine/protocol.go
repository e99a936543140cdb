package engine

import (
	"github.com/google/uuid"

	"hitqueue/internal/constants"
	"hitqueue/internal/request"
)

// Application describes the host application a hit is reported for.
type Application struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Protocol turns engine and application identity into the base
// parameters of every hit.
type Protocol interface {
	// Kind names the protocol. It is part of the client ID cache key.
	Kind() string
	Endpoint(secure bool) string
	Base(b *request.Builder, engineID, clientID string, app Application)
	// Finalizers lists the finalizers added to every hit.
	Finalizers() []string
	NewClientID() string
}

// Universal speaks the basics of the Measurement Protocol.
type Universal struct{}

var _ Protocol = Universal{}

func (Universal) Kind() string {
	return "universal"
}

func (Universal) Endpoint(secure bool) string {
	if secure {
		return constants.SecureEndpoint
	}
	return constants.InsecureEndpoint
}

func (Universal) Base(b *request.Builder, engineID, clientID string, app Application) {
	b.Set("v", "1").
		Set("tid", engineID).
		Set("cid", clientID).
		Set("an", app.Name).
		SetIf("av", app.Version)
}

func (Universal) Finalizers() []string {
	return []string{request.FinalizerQueueTime, request.FinalizerCacheBuster}
}

func (Universal) NewClientID() string {
	return uuid.NewString()
}
