package migration

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initUp = `CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);
INSERT INTO notes (body) VALUES ('seed');`

func schemaFS(files map[string]string) fstest.MapFS {
	out := fstest.MapFS{}
	for name, body := range files {
		out[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return out
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countNotes(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&n))
	return n
}

func TestNew_Validates(t *testing.T) {
	db := openDB(t, filepath.Join(t.TempDir(), "a.db"))
	_, err := New("", db, Schema{Migrations: fstest.MapFS{}})
	assert.Error(t, err)
	_, err = New("a.db", nil, Schema{Migrations: fstest.MapFS{}})
	assert.Error(t, err)
	_, err = New("a.db", db, Schema{Name: "x"})
	assert.Error(t, err)
}

func TestUp_AppliesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	db := openDB(t, path)
	schema := Schema{Name: "notes", Migrations: schemaFS(map[string]string{
		"1_init.up.sql":   initUp,
		"1_init.down.sql": "DROP TABLE notes;",
	}), Snapshot: true}

	m, err := New(path, db, schema)
	require.NoError(t, err)

	res, err := m.Up()
	require.NoError(t, err)
	assert.Equal(t, uint(0), res.From)
	assert.Equal(t, uint(1), res.To)
	assert.True(t, res.Changed())
	assert.Equal(t, 1, countNotes(t, db))

	before, err := m.snaps.List()
	require.NoError(t, err)

	res, err = m.Up()
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, res.Snapshot)

	after, err := m.snaps.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
	assert.NoFileExists(t, journalPath(path))
}

func TestUp_FailureRestoresSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	files := map[string]string{
		"1_init.up.sql":   initUp,
		"1_init.down.sql": "DROP TABLE notes;",
	}
	db := openDB(t, path)
	m, err := New(path, db, Schema{Name: "notes", Migrations: schemaFS(files), Snapshot: true})
	require.NoError(t, err)
	_, err = m.Up()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO notes (body) VALUES ('survivor')")
	require.NoError(t, err)

	files["2_broken.up.sql"] = "DELETE FROM notes; CREATE TABLE broken (;"
	files["2_broken.down.sql"] = "SELECT 1;"
	m, err = New(path, db, Schema{Name: "notes", Migrations: schemaFS(files), Snapshot: true})
	require.NoError(t, err)

	res, err := m.Up()
	require.ErrorIs(t, err, ErrMigrationFailed)
	assert.NotEmpty(t, res.Snapshot)
	assert.NoFileExists(t, journalPath(path))
	require.NoError(t, db.Close())

	reopened := openDB(t, path)
	assert.Equal(t, 2, countNotes(t, reopened))
	m, err = New(path, reopened, Schema{Name: "notes", Migrations: schemaFS(files)})
	require.NoError(t, err)
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
}

func TestUp_RefusesWhileJournalPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	db := openDB(t, path)
	require.NoError(t, beginJournal(path, journalEntry{Schema: "notes", PID: 42, StartedAt: time.Now()}))

	m, err := New(path, db, Schema{Name: "notes", Migrations: schemaFS(map[string]string{"1_init.up.sql": initUp})})
	require.NoError(t, err)
	_, err = m.Up()
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Contains(t, err.Error(), "pid 42")

	assert.ErrorIs(t, beginJournal(path, journalEntry{}), ErrInProgress)
}

func TestRecover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	db := openDB(t, path)
	m, err := New(path, db, Schema{Name: "notes", Migrations: schemaFS(map[string]string{"1_init.up.sql": initUp})})
	require.NoError(t, err)

	recovered, err := m.Recover()
	require.NoError(t, err)
	assert.False(t, recovered)

	_, err = m.Up()
	require.NoError(t, err)
	snap, err := m.snaps.Take()
	require.NoError(t, err)
	require.NotEmpty(t, snap)

	_, err = db.Exec("DELETE FROM notes")
	require.NoError(t, err)
	require.NoError(t, beginJournal(path, journalEntry{Schema: "notes", Snapshot: snap, PID: os.Getpid()}))

	recovered, err = m.Recover()
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.NoFileExists(t, journalPath(path))
	require.NoError(t, db.Close())

	assert.Equal(t, 1, countNotes(t, openDB(t, path)))
}

func TestRecover_CorruptJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	db := openDB(t, path)
	require.NoError(t, os.WriteFile(journalPath(path), []byte("{"), 0o644))
	m, err := New(path, db, Schema{Name: "notes", Migrations: fstest.MapFS{}})
	require.NoError(t, err)
	_, err = m.Recover()
	assert.Error(t, err)
}

func TestSnapshots_PruneAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	s := NewSnapshots(path, nil)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	s.clock = func() time.Time { return base.Add(time.Duration(step) * time.Minute) }

	var last string
	for step = 0; step < KeepSnapshots+2; step++ {
		snap, err := s.Take()
		require.NoError(t, err)
		last = snap
	}
	snaps, err := s.List()
	require.NoError(t, err)
	require.Len(t, snaps, KeepSnapshots)
	assert.Equal(t, last, snaps[0])

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o644))
	require.NoError(t, s.Restore(last))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, path+"-wal")
}

func TestSnapshots_EmptyDatabase(t *testing.T) {
	s := NewSnapshots(filepath.Join(t.TempDir(), "missing.db"), nil)
	snap, err := s.Take()
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.Error(t, s.Restore(""))
}
