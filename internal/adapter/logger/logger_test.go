package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("sync-service", &buf)

	lgr.Info("service_started", "started", "req-1", map[string]interface{}{"port": 3000})
	lgr.Error("push_failed", "push failed", "req-2", nil, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "INFO", info.Level)
	assert.Equal(t, "sync-service", info.Service)
	assert.Equal(t, "service_started", info.Action)
	assert.Equal(t, "req-1", info.RequestID)
	assert.Equal(t, float64(3000), info.Details["port"])
	assert.Nil(t, info.Error)

	var failure LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))
	assert.Equal(t, "ERROR", failure.Level)
	require.NotNil(t, failure.Error)
	assert.Equal(t, "boom", failure.Error.Msg)
}

func TestLogger_WarnLevel(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("svc", &buf).Warn("ledger_write_failed", "ledger down", "", nil)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry.Level)
}

func TestRequestID_RoundTripsThroughContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
