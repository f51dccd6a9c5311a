package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"televet/internal/docstore"
)

func TestPerformBackup_SQLiteSnapshot(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.NewSQLiteStore(filepath.Join(t.TempDir(), "televet.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Set(ctx, "users/vet1/schedules", "2026-03-10", docstore.Data{"date": "2026-03-10"}))

	dir := filepath.Join(t.TempDir(), "backups")
	now := time.Date(2026, 3, 9, 9, 40, 0, 0, time.UTC)
	svc := NewService(store, Config{Enabled: true, Dir: dir}, func() time.Time { return now }, nil)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "televet_20260309_094000.db"), path)

	snap, err := docstore.NewSQLiteStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	doc, err := snap.Get(ctx, "users/vet1/schedules", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", doc.Data["date"])
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 9, 9, 40, 0, 0, time.UTC)

	files := map[string]time.Time{
		"televet_old.db":    now.AddDate(0, 0, -10),
		"televet_recent.db": now.AddDate(0, 0, -1),
		"notes.txt":         now.AddDate(0, 0, -30),
	}
	for name, mod := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, os.Chtimes(path, mod, mod))
	}

	tests := []struct {
		name      string
		retention int
		want      int
		remaining []string
	}{
		{"retention disabled", 0, 0, []string{"notes.txt", "televet_old.db", "televet_recent.db"}},
		{"week retention", 7, 1, []string{"notes.txt", "televet_recent.db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(nil, Config{Dir: dir, RetentionDays: tt.retention}, func() time.Time { return now }, nil)
			removed, err := svc.CleanupOldBackups()
			require.NoError(t, err)
			assert.Equal(t, tt.want, removed)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.Equal(t, tt.remaining, names)
		})
	}
}

func TestStart_Disabled(t *testing.T) {
	svc := NewService(nil, Config{}, nil, nil)
	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled service did not return")
	}
}
