package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/conversation"
)

type echoResponder struct{}

func (echoResponder) Complete(_ context.Context, _, convo string) (string, error) {
	return "ok", nil
}

func sqliteConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{
		App:      coreconfig.AppConfig{Mode: coreconfig.ModeWeb},
		Logging:  coreconfig.LoggingConfig{Level: "error"},
		Database: coreconfig.DatabaseConfig{Driver: coreconfig.DriverSQLite, Path: filepath.Join(t.TempDir(), "leadbot.db")},
	}
	require.NoError(t, coreconfig.Normalize(cfg))
	return cfg
}

func TestRunAndBuildServices(t *testing.T) {
	cfg := sqliteConfig(t)

	res, err := Run(Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.DB.Close() })

	svc, err := BuildServices(ServiceOptions{Config: cfg, DB: res.DB, Responder: echoResponder{}})
	require.NoError(t, err)

	reply, err := svc.Controller.Handle(context.Background(), conversation.Inbound{
		SessionID: "web-1",
		Channel:   conversation.ChannelWeb,
		Input:     conversation.StartInput(),
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.StageSegmentation, reply.Stage)

	sess, found, err := svc.Store.GetSession(context.Background(), "web-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, conversation.StageSegmentation, sess.Stage)
}

func TestRunStopsOnMigrationFailure(t *testing.T) {
	cfg := sqliteConfig(t)
	connected := false

	_, err := Run(Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate:    func(coreconfig.DatabaseConfig) error { return errors.New("dirty") },
		Connect: func(coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations failed")
	assert.False(t, connected)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(Options{})
	assert.Error(t, err)

	_, err = BuildServices(ServiceOptions{})
	assert.Error(t, err)
}
