//go:build integration

package flarum_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/flarum/flarumtest"
)

// startMySQL runs a throwaway MySQL server and returns settings pointing at it.
func startMySQL(t *testing.T) *conf.SourceSettings {
	t.Helper()
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("flarum"),
		mysql.WithUsername("flarum"),
		mysql.WithPassword("flarum"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	connStr, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	dsn, err := mysqldriver.ParseDSN(connStr)
	require.NoError(t, err)

	host, portStr, err := net.SplitHostPort(dsn.Addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &conf.SourceSettings{
		Host:        host,
		Port:        port,
		Database:    "flarum",
		Username:    "flarum",
		Password:    "flarum",
		TablePrefix: "flarum_",
		Timeout:     30 * time.Second,
	}
}

func TestSource_MySQL(t *testing.T) {
	settings := startMySQL(t)
	ctx := context.Background()

	seedDB, err := gorm.Open(gormmysql.Open(flarum.DSN(settings)), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, flarumtest.CreateSchema(seedDB, settings.TablePrefix))
	require.NoError(t, flarumtest.Seed(seedDB, settings.TablePrefix, flarumtest.Forum()))

	src, err := flarum.Open(ctx, settings, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	users, err := src.ReadUsers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Bob Müller", users[1].Username)

	tags, err := src.ReadTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	rows, err := src.ReadPosts(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].OpensTopic())
	assert.Equal(t, time.UTC, rows[0].CreatedAt.Location())

	count, err := src.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}
