package secrets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/triage/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse(t *testing.T) {
	path := writeEnv(t, `# judge keys
ANTHROPIC_API_KEY=sk-ant
export OPENAI_API_KEY="sk-oai"
GEMINI_API_KEY='g-key'

not a variable
=novalue
URL=http://x/?a=b
`)
	vars, err := secrets.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, []secrets.Var{
		{Key: "ANTHROPIC_API_KEY", Value: "sk-ant"},
		{Key: "OPENAI_API_KEY", Value: "sk-oai"},
		{Key: "GEMINI_API_KEY", Value: "g-key"},
		{Key: "URL", Value: "http://x/?a=b"},
	}, vars)
	assert.Equal(t, []string{"ANTHROPIC_API_KEY=sk-ant", "OPENAI_API_KEY=sk-oai", "GEMINI_API_KEY=g-key", "URL=http://x/?a=b"}, secrets.Environ(vars))
}

func TestParseMissing(t *testing.T) {
	_, err := secrets.Parse(filepath.Join(t.TempDir(), "nope.env"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadKeepsExisting(t *testing.T) {
	t.Setenv("TRIAGE_TEST_EXISTING", "from-env")
	t.Setenv("TRIAGE_TEST_NEW", "")
	os.Unsetenv("TRIAGE_TEST_NEW")

	path := writeEnv(t, "TRIAGE_TEST_EXISTING=from-file\nTRIAGE_TEST_NEW=fresh\n")
	set, err := secrets.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TRIAGE_TEST_NEW"}, set)
	assert.Equal(t, "from-env", os.Getenv("TRIAGE_TEST_EXISTING"))
	assert.Equal(t, "fresh", os.Getenv("TRIAGE_TEST_NEW"))
}
