package waterfall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/model"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority.yaml")
	yaml := `
waterfall:
  priority:
    - cadastral_age
    - knowledge_graph
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{model.SourceCadastralAge, model.SourceKnowledgeGraph}, cfg.Priority)
}

func TestLoadConfigDefaultOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waterfall: {}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPriority, cfg.Priority)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waterfall: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
