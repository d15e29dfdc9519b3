package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/transfer"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useDatabase(t *testing.T, path string) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SQLITE_PATH", path)
}

func TestMigrateUserExportImport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	useDatabase(t, filepath.Join(dir, "source.db"))

	out, err := runCLI(t, "", "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "backend: embedded")
	require.Contains(t, out, "schema version: 9")

	out, err = runCLI(t, "s3cret\n", "user", "add", "Boss", "--role", "admin", "--name", "The Boss")
	require.NoError(t, err)
	require.Contains(t, out, "created boss (admin)")

	_, err = runCLI(t, "s3cret\n", "user", "add", "boss")
	require.Error(t, err)

	snapshot := filepath.Join(dir, "snapshot.json")
	_, err = runCLI(t, "", "export", snapshot)
	require.NoError(t, err)
	f, err := os.Open(snapshot)
	require.NoError(t, err)
	snap, err := transfer.ReadJSON(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Len(t, snap.Users, 1)

	useDatabase(t, filepath.Join(dir, "target.db"))
	out, err = runCLI(t, "", "import", snapshot, "--json")
	require.NoError(t, err)
	var counts transfer.Counts
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	require.Equal(t, 1, counts[transfer.EntityUsers].Imported)

	out, err = runCLI(t, "", "import", snapshot, "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	require.Equal(t, 0, counts[transfer.EntityUsers].Imported)
	require.Equal(t, 1, counts[transfer.EntityUsers].Skipped)
}

func TestBackupCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	useDatabase(t, filepath.Join(dir, "shop.db"))

	out, err := runCLI(t, "", "backup", "--format", "json")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	require.Equal(t, ".json", filepath.Ext(path))
	require.FileExists(t, path)

	_, err = runCLI(t, "", "backup", "--format", "zip")
	require.Error(t, err)
}

func TestJobsNeedRedis(t *testing.T) {
	useDatabase(t, filepath.Join(t.TempDir(), "shop.db"))
	_, err := runCLI(t, "", "jobs", "stats")
	require.ErrorContains(t, err, "REDIS_ADDR")
}
