package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/buildinfo"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := RootCommand(buildinfo.NewContext("1.2.3", "2026-01-01", "id"))

	for _, name := range []string{"capture", "analyze", "recover", "sessions"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.Contains(t, root.Version, "1.2.3")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
