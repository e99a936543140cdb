package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithEngineID(ctx, "UA-1-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithServiceName(ctx, "hitqueue")

	assert.Equal(t, []interface{}{
		"engine_id", "UA-1-1",
		"request_id", "req-1",
		"service_name", "hitqueue",
	}, GetLogFields(ctx))
}

func TestEarlyLog(t *testing.T) {
	var out, errOut bytes.Buffer
	l := &EarlyLog{out: &out, err: &errOut}

	l.Info("loaded %s", "config.yaml")
	l.Error("failed: %v", "boom")

	assert.Equal(t, "INFO: loaded config.yaml\n", out.String())
	assert.Equal(t, "ERROR: failed: boom\n", errOut.String())
}
