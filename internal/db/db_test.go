package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB creates a migrated sqlite database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp("../../migrations"))
	return database
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	rec := SessionRecord{
		SessionID:        "s1",
		StartedAt:        time.Now().UTC().Truncate(time.Second),
		ReferenceHipY:    0.5,
		ScaleUnit:        0.48,
		TrunkBaselineDeg: 2.5,
	}
	require.NoError(t, database.RecordSession(rec))

	// A duplicate insert for the same session is ignored, not an error.
	dup := rec
	dup.ScaleUnit = 0.99
	require.NoError(t, database.RecordSession(dup))

	sessions, err := database.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)
	assert.Equal(t, 0.48, sessions[0].ScaleUnit)
}

func TestSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)
	for n, id := range []string{"old", "mid", "new"} {
		require.NoError(t, database.RecordSession(SessionRecord{
			SessionID: id,
			StartedAt: base.Add(time.Duration(n) * time.Minute),
		}))
	}

	sessions, err := database.Sessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].SessionID)
	assert.Equal(t, "mid", sessions[1].SessionID)
}

func TestRepsRoundTrip(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Insert out of order; reads come back ordered by rep number.
	for _, n := range []int{2, 1, 3} {
		require.NoError(t, database.RecordRep(RepRecord{
			SessionID:  "s1",
			RepNumber:  n,
			Depth:      0.6 + float64(n)/100,
			Timestamp:  float64(n) * 2.5,
			RecordedAt: now,
		}))
	}
	require.NoError(t, database.RecordRep(RepRecord{SessionID: "other", RepNumber: 1, RecordedAt: now}))

	reps, err := database.Reps("s1")
	require.NoError(t, err)
	require.Len(t, reps, 3)
	for n, r := range reps {
		assert.Equal(t, n+1, r.RepNumber)
		assert.Equal(t, "s1", r.SessionID)
	}
	assert.Equal(t, 0.61, reps[0].Depth)
	assert.Equal(t, 2.5, reps[0].Timestamp)
}

func TestCuesRoundTrip(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, database.RecordCue(CueRecord{
		SessionID: "s1", Kind: "depth", Message: "Go a little deeper", RepNumber: 1, RecordedAt: base,
	}))
	require.NoError(t, database.RecordCue(CueRecord{
		SessionID: "s1", Kind: "trunk", Message: "Chest up", RepNumber: 2, RecordedAt: base.Add(time.Second),
	}))

	cues, err := database.Cues("s1")
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, "depth", cues[0].Kind)
	assert.Equal(t, "trunk", cues[1].Kind)

	// Unknown session yields no rows, not an error.
	cues, err = database.Cues("nope")
	require.NoError(t, err)
	assert.Empty(t, cues)
}

func TestMigrateVersionLifecycle(t *testing.T) {
	t.Parallel()

	database, err := NewDB(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	defer database.Close()

	version, dirty, err := database.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(0), version, "fresh database has no version")
	assert.False(t, dirty)

	require.NoError(t, database.MigrateUp("../../migrations"))
	version, dirty, err = database.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty)

	latest, err := GetLatestMigrationVersion("../../migrations")
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	// Running up again is a no-op.
	require.NoError(t, database.MigrateUp("../../migrations"))

	needed, err := database.CheckAndPromptMigrations("../../migrations")
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestCheckAndPromptMigrationsOnFreshDB(t *testing.T) {
	t.Parallel()

	database, err := NewDB(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	defer database.Close()

	needed, err := database.CheckAndPromptMigrations("../../migrations")
	assert.True(t, needed)
	assert.Error(t, err)
}

func TestGetLatestMigrationVersionMissingDir(t *testing.T) {
	t.Parallel()

	_, err := GetLatestMigrationVersion(t.TempDir())
	assert.Error(t, err)
}
