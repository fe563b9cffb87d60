package signal

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int, mutate map[int]string) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("step %d ok", i)
		if m, ok := mutate[i]; ok {
			lines[i] = m
		}
	}
	return strings.Join(lines, "\n")
}

func TestExtractFailureBlocks_NoSignal(t *testing.T) {
	ext := ExtractFailureBlocks(DefaultRuleSet(), "installing deps\nrunning tests\nall 42 tests passed\n")

	assert.False(t, ext.Found())
	assert.Empty(t, ext.Text)
}

func TestExtractFailureBlocks_ContextWindow(t *testing.T) {
	text := numberedLines(60, map[int]string{30: "ValueError: bad input"})

	ext := ExtractFailureBlocks(DefaultRuleSet(), text)

	require.Len(t, ext.Blocks, 1)
	b := ext.Blocks[0]
	assert.Equal(t, "typed-error", b.Rule)
	assert.Equal(t, 30, b.Line)
	assert.Equal(t, 25, b.Start)
	assert.Equal(t, 51, b.End)
	lines := strings.Split(b.Text, "\n")
	assert.Len(t, lines, ContextBefore+1+ContextAfter)
	assert.Equal(t, "step 25 ok", lines[0])
	assert.Equal(t, "step 50 ok", lines[len(lines)-1])
	assert.Equal(t, b.Text, ext.Text)
}

func TestExtractFailureBlocks_ClampedToBounds(t *testing.T) {
	text := numberedLines(4, map[int]string{1: "FAILED test_login"})

	ext := ExtractFailureBlocks(DefaultRuleSet(), text)

	require.Len(t, ext.Blocks, 1)
	assert.Equal(t, 0, ext.Blocks[0].Start)
	assert.Equal(t, 4, ext.Blocks[0].End)
}

func TestExtractFailureBlocks_DedupAndJoin(t *testing.T) {
	// Two matches close together inside a short log produce identical windows.
	text := "ERROR one\nERROR two\n"
	ext := ExtractFailureBlocks(DefaultRuleSet(), text)
	require.Len(t, ext.Blocks, 1)
	assert.Equal(t, "ERROR one\nERROR two", ext.Text)

	// Far-apart matches produce separate blocks joined by the separator.
	text = numberedLines(80, map[int]string{5: "Segmentation fault", 70: "make: *** exit code 2"})
	ext = ExtractFailureBlocks(DefaultRuleSet(), text)
	require.Len(t, ext.Blocks, 2)
	assert.Equal(t, "segfault", ext.Blocks[0].Rule)
	assert.Equal(t, "exit-code", ext.Blocks[1].Rule)
	assert.Equal(t, ext.Blocks[0].Text+BlockSeparator+ext.Blocks[1].Text, ext.Text)
}

func TestExtractFailureBlocks_FirstRuleWins(t *testing.T) {
	ext := ExtractFailureBlocks(DefaultRuleSet(), "Traceback (most recent call last): ERROR")
	require.Len(t, ext.Blocks, 1)
	assert.Equal(t, "python-traceback", ext.Blocks[0].Rule)
}

func TestExtractFailureBlocks_CaseSensitiveTokens(t *testing.T) {
	ext := ExtractFailureBlocks(DefaultRuleSet(), "no errors were found\n0 failed")
	assert.False(t, ext.Found())
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}
