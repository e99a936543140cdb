package request

import "time"

// Builder collects parameters and finalizers from the protocol adapter
// and the tracking modules before the request is frozen.
type Builder struct {
	payload    Payload
	finalizers []string
}

func NewBuilder(endpoint string) *Builder {
	return &Builder{payload: Payload{Endpoint: endpoint}}
}

func (b *Builder) Set(key, value string) *Builder {
	b.payload.Set(key, value)
	return b
}

// SetIf sets key only when value is not empty.
func (b *Builder) SetIf(key, value string) *Builder {
	if value != "" {
		b.payload.Set(key, value)
	}
	return b
}

func (b *Builder) Get(key string) (string, bool) {
	return b.payload.Get(key)
}

// AddFinalizer appends name unless it is already scheduled.
func (b *Builder) AddFinalizer(name string) *Builder {
	for _, f := range b.finalizers {
		if f == name {
			return b
		}
	}
	b.finalizers = append(b.finalizers, name)
	return b
}

func (b *Builder) Finalizers() []string {
	out := make([]string, len(b.finalizers))
	copy(out, b.finalizers)
	return out
}

func (b *Builder) Build(engineID string, createdAt time.Time) *Prepared {
	return New(engineID, b.payload, b.finalizers, createdAt)
}
