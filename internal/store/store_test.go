package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteForTest(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisForTest(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisFromClient(client, "test:", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"sqlite": newSQLiteForTest,
		"redis":  newRedisForTest,
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Ping(ctx))

			_, err := s.Get(ctx, "chatHistory")
			assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

			require.NoError(t, s.Set(ctx, "chatHistory", []byte(`{"version":1}`)))
			got, err := s.Get(ctx, "chatHistory")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":1}`, string(got))

			require.NoError(t, s.Set(ctx, "chatHistory", []byte(`{"version":2}`)))
			got, err = s.Get(ctx, "chatHistory")
			require.NoError(t, err)
			assert.JSONEq(t, `{"version":2}`, string(got))

			require.NoError(t, s.Delete(ctx, "chatHistory"))
			_, err = s.Get(ctx, "chatHistory")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "geminiAPIKey", []byte("k-123")))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(ctx, "geminiAPIKey")
	require.NoError(t, err)
	assert.Equal(t, "k-123", string(got))
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisFromClient(client, "", 0)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Set(context.Background(), "chatHistory", []byte("{}")))
	assert.True(t, mr.Exists(defaultRedisPrefix+"chatHistory"))
}

func TestMemoryStoreFailNext(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailNext(boom)

	err := m.Set(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, boom)

	require.NoError(t, m.Set(context.Background(), "k", []byte("v")))
	assert.Equal(t, 1, m.SetCount())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "etcd"})
	require.Error(t, err)

	s, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
