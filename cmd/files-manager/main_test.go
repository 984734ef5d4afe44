package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/files-manager/internal/config"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "worker")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestGetDiskUsage(t *testing.T) {
	total, used, available, err := getDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, total)
	assert.Equal(t, total, used+available)

	_, _, _, err = getDiskUsage("/nonexistent/path/for/test")
	require.Error(t, err)
}

func TestConnectionSettings(t *testing.T) {
	cfg := &config.Config{
		DBHost: "mongo", DBPort: 27018, DBDatabase: "fm", DBUser: "u", DBPassword: "p",
		RedisHost: "redis", RedisPort: 6380, RedisPassword: "secret", RedisDB: 1,
	}

	dial := mongoDialInfo(cfg)
	assert.Equal(t, "mongodb://u:p@mongo:27018/fm", dial.URI())

	opts := redisOptions(cfg)
	assert.Equal(t, "redis:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 1, opts.DB)
}

func TestBuildJWTResolver_Disabled(t *testing.T) {
	assert.Nil(t, buildJWTResolver(&config.Config{}, testLogger()))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
