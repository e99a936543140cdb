package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordVersion is bumped whenever the stored layout changes.
const RecordVersion = 1

var ErrCorruptRecord = errors.New("corrupt queue record")

// Record is the durable representation of a Prepared request.
type Record struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	EngineID   string    `json:"engine_id"`
	Method     string    `json:"method,omitempty"`
	Endpoint   string    `json:"endpoint"`
	Params     []Param   `json:"params"`
	Finalizers []string  `json:"finalizers,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func Encode(r *Prepared, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(Record{
		Version:    RecordVersion,
		ID:         r.ID,
		EngineID:   r.EngineID,
		Method:     r.Payload.Method,
		Endpoint:   r.Payload.Endpoint,
		Params:     r.Payload.Params,
		Finalizers: r.Finalizers,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  expiresAt,
	})
}

// Decode parses a stored record. Errors wrap ErrCorruptRecord.
func Decode(data []byte) (*Prepared, time.Time, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Version != RecordVersion {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, rec.Version)
	}
	if rec.ID == "" || rec.EngineID == "" {
		return nil, time.Time{}, fmt.Errorf("%w: missing id or engine id", ErrCorruptRecord)
	}

	return &Prepared{
		ID:       rec.ID,
		EngineID: rec.EngineID,
		Payload: Payload{
			Method:   rec.Method,
			Endpoint: rec.Endpoint,
			Params:   rec.Params,
		},
		Finalizers: rec.Finalizers,
		CreatedAt:  rec.CreatedAt,
		Persisted:  true,
	}, rec.ExpiresAt, nil
}
