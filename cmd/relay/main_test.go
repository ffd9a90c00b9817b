package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseSinksLogsFailuresAndContinues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var closed []string
	closeSinks(logger, []io.Closer{
		closerFunc(func() error { closed = append(closed, "redis"); return errors.New("redis: client is closed") }),
		closerFunc(func() error { closed = append(closed, "other"); return nil }),
	})

	assert.Equal(t, []string{"redis", "other"}, closed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "sink close failed", rec["msg"])
	assert.Equal(t, "redis: client is closed", rec["error"])
}
