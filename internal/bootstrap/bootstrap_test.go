package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvAppEnv, "test")
	t.Setenv(config.EnvPort, "8080")
	t.Setenv(config.EnvDBDSN, "file::memory:")
	t.Setenv(config.EnvRedisURL, "redis://localhost:6379/0")
}

func TestStartLoadsConfigAndStampsService(t *testing.T) {
	setEnv(t)

	rt, err := Start("cron-worker")
	require.NoError(t, err)
	require.Equal(t, "cron-worker", rt.Config.Service.Kind)
	require.NotNil(t, rt.Logger)
}

func TestStartReportsConfigErrors(t *testing.T) {
	setEnv(t)
	t.Setenv(config.EnvLogFormat, "xml")

	rt, err := Start("api")
	require.Error(t, err)
	require.NotNil(t, rt.Logger, "a logger is still available to report the failure")
}

func TestCloseRunsInReverseAndFatalExits(t *testing.T) {
	var buf bytes.Buffer
	var order []string
	code := -1
	rt := &Runtime{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: &buf}),
		exit:   func(c int) { code = c },
	}
	rt.OnClose("database", func() error { order = append(order, "database"); return nil })
	rt.OnClose("redis", func() error { order = append(order, "redis"); return errors.New("already closed") })

	rt.Fatal(context.Background(), "failed to create cron service", errors.New("lock required"))

	require.Equal(t, 1, code)
	require.Equal(t, []string{"redis", "database"}, order)
	require.Contains(t, buf.String(), `"resource":"redis"`)
	require.Contains(t, buf.String(), "failed to create cron service")

	rt.Close()
	require.Len(t, order, 2, "closers run once")
}

func TestDatabaseOpensSQLite(t *testing.T) {
	setEnv(t)
	t.Setenv("CREWPLANNER_DB_DRIVER", "sqlite")

	rt, err := Start("migrate")
	require.NoError(t, err)
	client, err := rt.Database(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.Ping(context.Background()))
	rt.Close()
}
