package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/logbook/internal/store"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOGBOOK_CONFIG", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "logbook "+version)
}

func TestPipePersistsAndPrintsCollapsed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	stdin := "starting\nERROR disk full\n\tat write()\nstarting\n"

	out, err := execute(t, stdin, "pipe", "-o", path, "--collapsed", "--tick", "1h",
		"--snapshot-dir", filepath.Join(dir, "snaps"), "--log-level", "off")
	require.NoError(t, err)
	assert.Equal(t, "(Info)starting\n  (x2)\n(Error)disk full\n at write()\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "(Info)starting\n \n(Error)disk full\n at write()\n(Info)starting\n \n", string(data))
}

func TestPipeSnapshotWithCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.db")
	_, err := execute(t, "warn low memory\n", "pipe", "--persist=false", "--snapshot",
		"--snapshot-dir", filepath.Join(dir, "snaps"), "--catalog", catalog, "--log-level", "off")
	require.NoError(t, err)

	out, err := execute(t, "", "export", "--catalog", catalog, "--json")
	require.NoError(t, err)
	var snaps []store.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "pipe", snaps[0].Trigger)
	assert.Equal(t, 1, snaps[0].Occurrences)

	data, err := os.ReadFile(snaps[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "(Warning)low memory\n ", string(data))

	table, err := execute(t, "", "export", "--catalog", catalog)
	require.NoError(t, err)
	assert.Contains(t, table, "TRIGGER")
	assert.Contains(t, table, snaps[0].Path)
}

func TestPipeRejectsBadFilter(t *testing.T) {
	_, err := execute(t, "", "pipe", "--persist=false", "--filter", "loud")
	require.Error(t, err)
}

func TestExportNeedsCatalog(t *testing.T) {
	t.Setenv("LOGBOOK_SNAPSHOT_CATALOG", "")
	_, err := execute(t, "", "export")
	require.Error(t, err)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "logbook.yaml")
	outPath := filepath.Join(dir, "from-flag.log")
	require.NoError(t, os.WriteFile(cfgPath, []byte("severity_filter: error\npersist:\n  path: "+filepath.Join(dir, "from-file.log")+"\n"), 0o644))

	_, err := execute(t, "info ignored\nerror kept\n", "--config", cfgPath, "--log-level", "off", "pipe", "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "(Error)kept\n \n", string(data))
	_, err = os.Stat(filepath.Join(dir, "from-file.log"))
	assert.True(t, os.IsNotExist(err))
}
