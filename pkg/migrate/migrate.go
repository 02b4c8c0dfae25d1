package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// SourceDir is where migration files live in the repository; create writes new files here.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Files returns the migrations compiled into the binary.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Result is one applied or inspected migration, flattened for logs and CLI output.
type Result struct {
	Version int64
	Source  string
	State   string
}

// Run applies command against db using the migrations in fsys. jobs.location needs
// PostGIS, so only Postgres is supported. target is used by "version" only.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, command, target string) ([]Result, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := Validate(fsys); err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}

	switch command {
	case "up":
		return applied(provider.Up(ctx))
	case "down":
		res, err := provider.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return applied([]*goose.MigrationResult{res}, nil)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		out := make([]Result, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, Result{Version: s.Source.Version, Source: s.Source.Path, State: string(s.State)})
		}
		return out, nil
	case "version":
		return toVersion(ctx, provider, target)
	}
	return nil, fmt.Errorf("unknown migrate command %q", command)
}

func toVersion(ctx context.Context, provider *goose.Provider, target string) ([]Result, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		return applied(provider.UpTo(ctx, version))
	case current > version:
		return applied(provider.DownTo(ctx, version))
	}
	return nil, nil
}

func applied(results []*goose.MigrationResult, err error) ([]Result, error) {
	if err != nil {
		return nil, fmt.Errorf("goose: %w", err)
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{Version: r.Source.Version, Source: r.Source.Path, State: r.Direction})
	}
	return out, nil
}
