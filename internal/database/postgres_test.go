package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prompt-request/go-services/internal/config"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		URL:              "postgres://pr:secret@db:5432/promptreq?sslmode=disable",
		MaxConnections:   7,
		StatementTimeout: 15 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, int32(7), pc.MaxConns)
	require.Equal(t, "15000", pc.ConnConfig.RuntimeParams["statement_timeout"])
	require.Equal(t, "db", pc.ConnConfig.Host)
}

func TestPoolConfigInvalidURL(t *testing.T) {
	_, err := PoolConfig(config.DatabaseConfig{URL: "://nope"})
	require.Error(t, err)
}

func TestConnectWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectWithRetry(ctx, config.DatabaseConfig{URL: "postgres://x@127.0.0.1:1/none?connect_timeout=1"}, 3)
	require.Error(t, err)
}

func TestSchemaIsIdempotent(t *testing.T) {
	s := Schema()
	for _, table := range []string{"accounts", "requests", "request_revisions"} {
		require.Contains(t, s, "CREATE TABLE IF NOT EXISTS "+table)
	}
	require.NotContains(t, strings.ToUpper(s), "DROP ")
	require.Contains(t, s, "rev_seq")
}
