package misc

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretKeysWithPrefix(t *testing.T) {
	t.Setenv("NEBULA_TEST_KEY_B", "b")
	t.Setenv("NEBULA_TEST_KEY_A", "a")
	SetSecret("NEBULA_TEST_KEY_C", "c")
	defer delete(secretsMap, "NEBULA_TEST_KEY_C")

	assert.Equal(t, []string{"NEBULA_TEST_KEY_A", "NEBULA_TEST_KEY_B", "NEBULA_TEST_KEY_C"}, SecretKeysWithPrefix("NEBULA_TEST_KEY_"))
	assert.Equal(t, "a", GetSecret("NEBULA_TEST_KEY_A"))
	assert.Equal(t, "c", GetSecret("NEBULA_TEST_KEY_C"))
	assert.Empty(t, GetSecret("NEBULA_TEST_KEY_MISSING"))
}

func TestConsoleHandlerOutput(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out, true, slog.LevelInfo)

	logger.With("wallet", "abc").Info("snapshot loaded", "accounts", 2)
	Debugf(logger, "should not show")
	Warnf(logger, "low balance:%d", 5)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `snapshot loaded {"accounts":"2","wallet":"abc"}`, lines[0])
	assert.Equal(t, "WARN low balance:5", lines[1])
}

func TestJSONLoggerKeys(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out, false, slog.LevelInfo)
	Infof(logger, "hello %s", "nebula")

	assert.Contains(t, out.String(), `"message":"hello nebula"`)
	assert.Contains(t, out.String(), `"severity":"INFO"`)
}
