package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devmainman/kurosadmin/pkg/logger"
)

// exerciseStore runs the contract every Store implementation must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok := s.Load(ctx)
	assert.False(t, ok, "fresh store must be empty")

	require.NoError(t, s.Save(ctx, "tok-1"))
	got, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", got)

	require.NoError(t, s.Save(ctx, "tok-2"))
	got, _ = s.Load(ctx)
	assert.Equal(t, "tok-2", got)

	require.NoError(t, s.Clear(ctx))
	_, ok = s.Load(ctx)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx), "clearing twice is not an error")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	exerciseStore(t, NewFileStore(path, logger.Discard()))
}

func TestFileStore_SurvivesNewInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	require.NoError(t, NewFileStore(path, logger.Discard()).Save(ctx, "persisted"))

	got, ok := NewFileStore(path, logger.Discard()).Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "persisted", got)
}

func TestFileStore_OwnerOnlyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, NewFileStore(path, logger.Discard()).Save(context.Background(), "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptDocumentIsAbsence(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok := NewFileStore(path, logger.Discard()).Load(context.Background())
	assert.False(t, ok)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, FileName), logger.Discard())
	require.NoError(t, s.Save(context.Background(), "a"))
	require.NoError(t, s.Save(context.Background(), "b"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestDefaultPath_UsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kurosadmin", FileName), path)
}

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "", logger.Discard()), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := setupTestRedis(t)
	exerciseStore(t, s)
}

func TestRedisStore_UsesDefaultKey(t *testing.T) {
	s, mr := setupTestRedis(t)
	require.NoError(t, s.Save(context.Background(), "tok"))

	got, err := mr.Get(DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
	assert.False(t, mr.Exists(DefaultRedisKey) && mr.TTL(DefaultRedisKey) > 0, "token must not expire")
}

func TestRedisStore_UnreachableIsAbsence(t *testing.T) {
	s, mr := setupTestRedis(t)
	require.NoError(t, s.Save(context.Background(), "tok"))
	mr.Close()

	_, ok := s.Load(context.Background())
	assert.False(t, ok)
	assert.Error(t, s.Ping(context.Background()))
}
