package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteBootstrapsTaskLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "journal.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='task_log';").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "task_log", name)

	// Bootstrapping twice is harmless.
	require.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestCheckLocalFilesystem(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "a", "b", "journal.db")

	tests := []struct {
		name    string
		fsType  string
		err     error
		wantErr bool
	}{
		{name: "local", fsType: "ext4"},
		{name: "nfs", fsType: "nfs", wantErr: true},
		{name: "smb uppercase", fsType: "SMBFS", wantErr: true},
		{name: "unknown type", fsType: ""},
		{name: "detector error", err: errors.New("statfs failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inspected string
			err := checkLocalFilesystemWith(dbPath, func(p string) (string, error) {
				inspected = p
				return tt.fsType, tt.err
			})
			assert.Equal(t, root, inspected, "nearest existing ancestor is inspected")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNetworkFilesystem))
				assert.Contains(t, err.Error(), "MESH_JOURNAL_PATH")
				return
			}
			assert.NoError(t, err)
		})
	}
}
