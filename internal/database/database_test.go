package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConnectRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	ctx := context.Background()
	client, err := ConnectRedis(ctx, "redis://"+server.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, Ping(ctx, client, time.Second))

	server.Close()
	require.Error(t, Ping(ctx, client, 100*time.Millisecond))

	_, err = ConnectRedis(ctx, "", time.Second)
	require.Error(t, err)
	_, err = ConnectRedis(ctx, "://bad", time.Second)
	require.Error(t, err)
}

func TestConnectRequiresAddresses(t *testing.T) {
	_, err := ConnectPostgres("", DefaultPoolOptions())
	require.Error(t, err)
	_, err = ConnectNATS("", "autograde")
	require.Error(t, err)
}

func TestMigrateCreatesGradingTables(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, table := range []string{"exams", "questions", "submissions", "answers", "similarity_flags", "source_documents"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}
}
