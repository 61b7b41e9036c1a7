package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/config"
)

func TestTemplates_LoadAsDefaults(t *testing.T) {
	templates := map[string]string{
		"user":    UserConfigTemplate,
		"project": ProjectConfigTemplate,
	}
	for name, tmpl := range templates {
		t.Run(name, func(t *testing.T) {
			// Given an untouched template on disk
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tmpl), 0o644))

			// When it is loaded
			cfg, err := config.LoadFile(path)

			// Then nothing differs from the built-in defaults
			require.NoError(t, err)
			assert.Equal(t, config.NewConfig(), cfg)
		})
	}
}

func TestTemplates_UncommentedKeysParse(t *testing.T) {
	// Given the project template with one setting switched on
	content := strings.Replace(ProjectConfigTemplate, "  # default_top_k: 5", "  default_top_k: 9", 1)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When it is loaded
	cfg, err := config.LoadFile(path)

	// Then the setting applies
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Search.DefaultTopK)
}

