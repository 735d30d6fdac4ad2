package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsAndHashes(t *testing.T) {
	out := sanitizeKVs([]any{
		"api_key", "sk-live-123",
		"user_id", "2b9cf0c4-6f0e-4c4e-8d71-0f4d2c1b9a11",
		"course_id", "c-1",
	})
	require.Len(t, out, 6)
	require.Equal(t, "[REDACTED]", out[1])
	require.True(t, strings.HasPrefix(out[3].(string), "hash:"))
	require.Len(t, out[3].(string), len("hash:")+12)
	require.Equal(t, "c-1", out[5])
}

func TestSanitizeKVsTruncatesText(t *testing.T) {
	long := strings.Repeat("a", maxTextRunes+50)
	out := sanitizeKVs([]any{"source_text", long})
	got := out[1].(string)
	require.Equal(t, maxTextRunes+1, len([]rune(got)))
	require.True(t, strings.HasSuffix(got, "…"))
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]any{"stage", "chapter", "dangling"})
	require.Equal(t, []any{"stage", "chapter", "dangling"}, out)
}

func TestNopLogger(t *testing.T) {
	log := Nop()
	log.With("component", "test").Info("ignored", "k", "v")
	log.Sync()
}
