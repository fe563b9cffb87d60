package logprocessing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceExcerpt_CollapsesRepeatedTemplates(t *testing.T) {
	var lines []string
	for i := 1; i <= 30; i++ {
		lines = append(lines, fmt.Sprintf("Running test %d of 30", i))
	}
	lines = append(lines, "", "ValueError: bad input", "Running test 31 of 30")
	block := strings.Join(lines, "\n")

	ex := ReduceExcerpt(block, DefaultExcerptConfig())

	assert.Equal(t, "Running test 1 of 30\nValueError: bad input", ex.Text)
	assert.Equal(t, 2, ex.Lines)
	assert.Equal(t, 32, ex.InputLines)
	assert.False(t, ex.Truncated)
	require.Len(t, ex.Templates, 2)
	require.Len(t, ex.TemplateIDs, 2)
	assert.Equal(t, GenerateTemplateID("excerpt", ex.Templates[1]), ex.TemplateIDs[1])
}

func TestReduceExcerpt_KeepsSeparators(t *testing.T) {
	block := "first failure here\n\n---\n\nsecond completely different problem"

	ex := ReduceExcerpt(block, DefaultExcerptConfig())

	assert.Equal(t, "first failure here\n---\nsecond completely different problem", ex.Text)
}

func TestReduceExcerpt_MaxLines(t *testing.T) {
	block := "alpha one\nbravo two three\ncharlie four five six\ndelta seven eight nine ten"

	ex := ReduceExcerpt(block, ExcerptConfig{MaxLines: 2, Drain: DefaultDrainConfig()})

	assert.Equal(t, "alpha one\nbravo two three", ex.Text)
	assert.True(t, ex.Truncated)
}

func TestReduceExcerpt_Empty(t *testing.T) {
	ex := ReduceExcerpt("\n\n", DefaultExcerptConfig())
	assert.Empty(t, ex.Text)
	assert.Zero(t, ex.Lines)
}

func TestChunkLines(t *testing.T) {
	text := "a\nb\nc\nd\ne\n"

	assert.Equal(t, []string{"a\nb", "c\nd", "e"}, ChunkLines(text, 2))
	assert.Equal(t, []string{"a\nb\nc\nd\ne"}, ChunkLines(text, 0))
	assert.Nil(t, ChunkLines("\n\n", 1))
}

func TestMaskVariables(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exit code preserved", "Process completed with exit code 137", "Process completed with exit code 137"},
		{"counters masked", "retry 3 of 5", "retry <NUM> of <NUM>"},
		{"paths", "open /home/runner/work/app/config.yaml failed", "open <PATH> failed"},
		{"durations", "test took 1.52s", "test took <DURATION>"},
		{"uuid", "job 123e4567-e89b-12d3-a456-426614174000 done", "job <UUID> done"},
		{"hex", "fault at 0x7ffd4a2c", "fault at <HEX>"},
		{"timestamp", "2024-01-02T03:04:05Z ERROR x", "<TIMESTAMP> ERROR x"},
		{"url", "GET https://example.com/api/v1 failed", "GET <URL> failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskVariables(tt.in))
		})
	}
}

func TestPreProcess(t *testing.T) {
	assert.Equal(t, "boom", PreProcess(`  {"level":"error","msg":"boom"}  `))
	assert.Equal(t, "FAIL TestX", PreProcess("\x1b[31mFAIL\x1b[0m TestX"))
	assert.Equal(t, `{"level":"error"}`, PreProcess(`{"level":"error"}`))
	assert.Equal(t, "{not json", PreProcess("{not json"))
}

func TestGenerateTemplateID(t *testing.T) {
	a := GenerateTemplateID("excerpt", "connected to <*>")
	b := GenerateTemplateID("excerpt", "connected to <PATH>")
	c := GenerateTemplateID("other", "connected to <*>")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
