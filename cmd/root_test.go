package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/parolam/breach-checker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	rc := NewRootCommand()

	var names []string
	for _, c := range rc.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "import", "setup"}, names)

	imp, _, err := rc.Find([]string{"import"})
	require.NoError(t, err)
	f := imp.Flags().Lookup("batch-size")
	require.NotNil(t, f)
	assert.Equal(t, "100000", f.DefValue)
}

func TestImportRequiresInput(t *testing.T) {
	rc := NewRootCommand()
	rc.SetArgs([]string{"import"})
	rc.SetOut(&bytes.Buffer{})
	rc.SetErr(&bytes.Buffer{})

	err := rc.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

func TestRunImportWithoutFiles(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.DriverClickHouse, BatchSize: 10}
	err := runImport(context.Background(), cfg, t.TempDir(), false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .txt files")
}
