package signal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules_OverridesSection(t *testing.T) {
	rs, err := ParseRules([]byte(`
failure:
  - label: oops
    pattern: 'OOPS'
  - label: boom
    pattern: 'boom'
    ignore_case: true
`))
	require.NoError(t, err)

	require.Len(t, rs.Failure, 2)
	assert.True(t, rs.Failure[1].Matches("BOOM"))
	assert.False(t, rs.Failure[0].Matches("oops"))
	assert.Equal(t, len(DefaultRuleSet().Languages), len(rs.Languages))
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad regex", "failure:\n  - pattern: '('\n"},
		{"unknown field", "failures: []\n"},
		{"duplicate language", "languages:\n  - language: go\n    rules: [{pattern: x}]\n  - language: go\n    rules: [{pattern: y}]\n"},
		{"empty pattern", "failure:\n  - label: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseRules_EmptyFileUsesDefaults(t *testing.T) {
	rs, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultRuleSet().Failure), len(rs.Failure))
}

func TestAnalyzer_ReloadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	a := NewAnalyzer(nil)

	require.NoError(t, os.WriteFile(path, []byte("failure:\n  - label: custom\n    pattern: 'KABOOM'\n"), 0o644))
	require.NoError(t, a.ReloadFile(path))
	assert.True(t, a.ExtractFailureBlocks("KABOOM").Found())
	assert.False(t, a.ExtractFailureBlocks("ERROR").Found())

	require.NoError(t, os.WriteFile(path, []byte("failure:\n  - pattern: '['\n"), 0o644))
	assert.Error(t, a.ReloadFile(path))
	assert.True(t, a.ExtractFailureBlocks("KABOOM").Found(), "previous rules stay active")
}

func TestAnalyzer_ConcurrentSwap(t *testing.T) {
	a := NewAnalyzer(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Swap(DefaultRuleSet())
		}()
		go func() {
			defer wg.Done()
			assert.True(t, a.ExtractFailureBlocks("ERROR here").Found())
			assert.Equal(t, "java", a.DetectLanguage("java.lang.IllegalStateException"))
		}()
	}
	wg.Wait()
}
