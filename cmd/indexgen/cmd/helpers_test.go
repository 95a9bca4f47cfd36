package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// indexgenEnv lists the variables config.Load reads, so a developer's shell
// cannot leak into the tests.
var indexgenEnv = []string{
	"INDEXGEN_FILTER_ENABLED",
	"INDEXGEN_INDEX_BACKEND",
	"INDEXGEN_INDEX_BASE_URL",
	"INDEXGEN_INDEX_PATH",
	"INDEXGEN_STORE_DRIVER",
	"INDEXGEN_STORE_DSN",
	"INDEXGEN_STORE_PATH",
	"INDEXGEN_REDIS_ADDR",
	"INDEXGEN_REDIS_PASSWORD",
	"INDEXGEN_NOTIFY_CHANNEL",
	"INDEXGEN_SPOOL_DIR",
	"INDEXGEN_SERVER_ADDR",
	"INDEXGEN_LOG_LEVEL",
}

// setupWorkspace chdirs into a fresh directory holding an indexgen.yaml that
// uses a local bleve index and a SQLite task store under it.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range indexgenEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Chdir(dir)

	cfg := "index:\n" +
		"  backend: bleve\n" +
		"  path: " + filepath.Join(dir, "index") + "\n" +
		"store:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "tasks.db") + "\n" +
		"notify:\n" +
		"  redis_addr: \"\"\n" +
		"  spool_dir: " + filepath.Join(dir, "spool") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "indexgen.yaml"), []byte(cfg), 0o644))
	return dir
}

// writeSnapshot writes a system-metadata snapshot file and returns its path.
func writeSnapshot(t *testing.T, dir, name, pid string, serial int) string {
	t.Helper()
	body := `{
  "identifier": "` + pid + `",
  "dateSysMetadataModified": "2024-01-02T03:04:05.000Z",
  "serialVersion": ` + strconv.Itoa(serial) + `,
  "formatId": "eml://ecoinformatics.org/eml-2.1.1",
  "replica": [
    {"replicaMemberNode": "urn:node:A", "replicaVerified": "2024-01-01T00:00:00.000Z"}
  ]
}`
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	debugMode = false

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
