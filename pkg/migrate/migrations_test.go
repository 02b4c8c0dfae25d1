package migrate_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/crewplanner-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Files()))

	embedded, err := fs.Glob(migrate.Files(), "*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}

func TestJobsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_jobs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS jobs",
		"location geography(Point,4326) NULL",
		"status job_status NOT NULL DEFAULT 'pending'",
		"CHECK (route_order IS NULL OR route_order > 0)",
		"CREATE TABLE IF NOT EXISTS crew_assignments",
		"DROP TABLE IF EXISTS jobs",
	}
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}
}

func TestCrewMigrationBoundsWeekday(t *testing.T) {
	content := readMigration(t, "*_create_crews.sql")

	assert.Contains(t, content, "CHECK (weekday BETWEEN 0 AND 6)")
	assert.Contains(t, content, "UNIQUE (crew_id, area_id, weekday)")
}

func TestCreateSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Crew Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260302093000_add_crew_notes.sql"), path)
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add crew notes", now)
	assert.Error(t, err, "same version and name must not overwrite")
	_, err = migrate.Create(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":     {"001_bad.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"no down":      {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
		"dup versions": {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}, "20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, migrate.Validate(fsys))
		})
	}
}

func TestRunRequiresDB(t *testing.T) {
	_, err := migrate.Run(context.Background(), nil, migrate.Files(), "up", "")
	assert.EqualError(t, err, "db is required")
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Files(), pattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)

	data, err := fs.ReadFile(migrate.Files(), matches[0])
	require.NoError(t, err)
	return string(data)
}
