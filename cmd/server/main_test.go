package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "checklist.yaml")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg, "--db", ":memory:"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestExpand_EmptyStore(t *testing.T) {
	// GIVEN a fresh in-memory store WHEN expanding a month
	out, err := execute(t, "expand", "--from", "2024-01-01", "--to", "2024-01-31")

	// THEN an empty JSON list is printed
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestExpand_InvalidRange(t *testing.T) {
	_, err := execute(t, "expand", "--from", "2024-02-01", "--to", "2024-01-01")
	assert.Error(t, err)

	_, err = execute(t, "expand", "--from", "2024-01-01")
	assert.Error(t, err, "--to is required")
}

func TestExpand_RangeOverLimit(t *testing.T) {
	// GIVEN the default 400-day limit WHEN asking for two years
	_, err := execute(t, "expand", "--from", "2024-01-01", "--to", "2025-12-31")

	// THEN the command refuses before expanding
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 400")
}

func TestAudit_EmptyStore(t *testing.T) {
	out, err := execute(t, "audit", "--country", "FR")

	require.NoError(t, err)
	assert.Contains(t, out, "FR ")
	assert.Contains(t, out, "0 missing recorded")
}
