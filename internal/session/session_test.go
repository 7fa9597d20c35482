package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
	"github.com/stretchr/testify/require"
)

// plainStore - Store без SetMany; может сломаться на заданном ключе.
type plainStore struct {
	data    map[string]string
	failKey string
}

func (p *plainStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := p.data[key]
	return v, ok, nil
}

func (p *plainStore) Set(_ context.Context, key, value string) error {
	if key == p.failKey {
		return errors.New("disk full")
	}
	p.data[key] = value
	return nil
}

func (p *plainStore) Remove(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(p.data, k)
	}
	return nil
}

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestSession_SaveLoadClear_Memory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(NewMemoryStore())
	s.now = fixedNow

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, envelope.TokenPair{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}))

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", access)

	p, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r2", p.RefreshToken)
	require.Equal(t, time.Hour, p.ExpiresIn)
	require.Equal(t, fixedNow().Add(time.Hour), p.ExpiresAt)

	require.NoError(t, s.Clear(ctx))

	access, err = s.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)

	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, refresh)
}

func TestSession_Save_RejectsPartialPair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	s := New(st)

	err := s.Save(ctx, envelope.TokenPair{AccessToken: "only-access"})
	require.ErrorIs(t, err, ErrInvalidPair)

	_, ok, _ := st.Get(ctx, KeyAccessToken)
	require.False(t, ok)
}

func TestSession_Save_RollsBackOnPlainStoreFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &plainStore{data: map[string]string{}, failKey: KeyRefreshToken}
	s := New(st)

	err := s.Save(ctx, envelope.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60})
	require.Error(t, err)

	require.Empty(t, st.data, "после сбоя не должно остаться половины пары")
}

func TestSession_Load_PartialPairIsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Set(ctx, KeyAccessToken, "dangling"))

	_, ok, err := New(st).Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpen_Backends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	st, closer, err := Open(ctx, config.SessionConfig{Backend: BackendMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, st)
	require.NoError(t, closer.Close())

	st, closer, err = Open(ctx, config.SessionConfig{Backend: BackendFile, FilePath: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, st)
	require.NoError(t, closer.Close())

	_, _, err = Open(ctx, config.SessionConfig{Backend: BackendFile})
	require.Error(t, err)

	_, _, err = Open(ctx, config.SessionConfig{Backend: "etcd"})
	require.Error(t, err)

	_, _, err = Open(ctx, config.SessionConfig{Backend: BackendRedis, RedisURL: "not a url"})
	require.Error(t, err)
}
