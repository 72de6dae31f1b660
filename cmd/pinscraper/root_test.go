package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pinscraper/pkg/errors"
)

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configFile, searchTerm, stagesFlag = "", "", "1,2,3,4"
	})
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func brokenConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download: [not a map"), 0600))
	return path
}

func TestRunRejectsSelectionBeforeReadingConfig(t *testing.T) {
	err := runRoot(t, "--config", brokenConfig(t), "--stages", "1,2")

	require.Error(t, err)
	assert.Equal(t, errs.KindInputValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "search term is required")
	assert.NotContains(t, err.Error(), "config file")
}

func TestRunRejectsUnknownStageBeforeReadingConfig(t *testing.T) {
	err := runRoot(t, "--config", brokenConfig(t), "--stages", "3,7")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage 7")
}

func TestRunReadsConfigForValidSelection(t *testing.T) {
	err := runRoot(t, "--config", brokenConfig(t), "--stages", "3")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}
