package taxonomy_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := taxonomy.Default()
	assert.Equal(t, 9, r.Len())
	assert.True(t, r.Contains("wrong_tool"))
	assert.True(t, r.Contains("context_or_format_error"))
	assert.False(t, r.Contains(taxonomy.Unclassified))
	assert.False(t, r.Contains(taxonomy.ClassificationFailed))
	assert.Equal(t, "wrong_tool", r.Names()[0])
}

func TestCategoriesIsCopy(t *testing.T) {
	r := taxonomy.Default()
	cats := r.Categories()
	cats[0].Name = "mutated"
	assert.True(t, r.Contains("wrong_tool"))
	assert.Equal(t, "wrong_tool", r.Names()[0])
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name string
		cats []taxonomy.Category
	}{
		{"empty", nil},
		{"blank name", []taxonomy.Category{{Name: " "}}},
		{"reserved", []taxonomy.Category{{Name: taxonomy.Unclassified}}},
		{"duplicate", []taxonomy.Category{{Name: "a"}, {Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taxonomy.New(tt.cats)
			assert.Error(t, err)
		})
	}
}

func TestRender(t *testing.T) {
	r, err := taxonomy.New([]taxonomy.Category{
		{Name: "a", Description: "first"},
		{Name: "b", Description: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "  - a: first\n  - b: second", r.Render())
	d, ok := r.Description("b")
	assert.True(t, ok)
	assert.Equal(t, "second", d)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `- name: tool_misuse
  description: used a tool badly
- name: gave_up
  description: stopped early
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := taxonomy.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_misuse", "gave_up"}, r.Names())
	assert.True(t, strings.Contains(r.Render(), "stopped early"))
}
