package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		offsetMs int64
		want     string
	}{
		{0, "00:00"},
		{999, "00:00"},
		{1000, "00:01"},
		{65000, "01:05"},
		{3599000, "59:59"},
		{3600000, "01:00:00"},
		{3661000, "01:01:01"},
		{-5000, "00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.offsetMs), "offset %d", tt.offsetMs)
	}
}

func TestBuildTimestampedText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", BuildTimestampedText(nil))

	chunks := []Chunk{
		{Text: "a", OffsetMs: 0},
		{Text: "b", OffsetMs: 65000},
	}
	assert.Equal(t, "[00:00] a\n[01:05] b", BuildTimestampedText(chunks))
}

func TestTimestampMarkdown(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", TimestampMarkdown(nil))

	chunks := []Chunk{
		{Text: "plain", OffsetMs: 1000},
		{Text: "has [brackets] and *stars*", OffsetMs: 2000},
	}
	got := TimestampMarkdown(chunks)
	assert.Equal(t, "- [00:01] plain\n- [00:02] has \\[brackets\\] and \\*stars\\*", got)
}

func TestEscapeMarkdownInline(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `\*bold\*`, EscapeMarkdownInline("*bold*"))
	assert.Equal(t, `\\already`, EscapeMarkdownInline(`\already`))
	assert.Equal(t, "nothing to do", EscapeMarkdownInline("nothing to do"))
}
