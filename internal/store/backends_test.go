package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendFactories builds every backend against throwaway resources.
func backendFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()

	return map[string]func(t *testing.T) Store{
		BackendMemory: func(_ *testing.T) Store {
			return NewMemoryStore()
		},
		BackendFile: func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "slots.db"))
			require.NoError(t, err)
			return s
		},
		BackendRedis: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore("redis://"+mr.Addr(), "test")
			require.NoError(t, err)
			return s
		},
	}
}

func TestBackends_Conformance(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })
			ctx := context.Background()

			// missing key
			_, err := s.Get(ctx, "sid:flexishop_cart")
			assert.ErrorIs(t, err, ErrNotFound)

			// put then get
			require.NoError(t, s.Put(ctx, "sid:flexishop_cart", []byte(`[{"id":1}]`)))
			got, err := s.Get(ctx, "sid:flexishop_cart")
			require.NoError(t, err)
			assert.Equal(t, `[{"id":1}]`, string(got))

			// last write wins
			require.NoError(t, s.Put(ctx, "sid:flexishop_cart", []byte(`[]`)))
			got, err = s.Get(ctx, "sid:flexishop_cart")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			// keys are independent
			require.NoError(t, s.Put(ctx, "sid:flexishop_user", []byte(`{"name":"ann"}`)))
			got, err = s.Get(ctx, "sid:flexishop_cart")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			// delete is idempotent
			require.NoError(t, s.Delete(ctx, "sid:flexishop_cart"))
			require.NoError(t, s.Delete(ctx, "sid:flexishop_cart"))
			_, err = s.Get(ctx, "sid:flexishop_cart")
			assert.ErrorIs(t, err, ErrNotFound)

			// empty key rejected
			assert.ErrorIs(t, s.Put(ctx, "", []byte("x")), ErrInvalidKey)
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	ctx := context.Background()
	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "abc:flexishop_cart", []byte(`[1]`)))

	// Act
	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Get(ctx, "abc:flexishop_cart")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))
}

func TestSQLiteStore_PersistsAcrossInstances(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "nested", "slots.db")
	ctx := context.Background()
	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "abc:flexishop_user", []byte(`{}`)))
	require.NoError(t, first.Close())

	// Act
	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Get(ctx, "abc:flexishop_user")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
}

func TestRedisStore_UsesNamespace(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://"+mr.Addr(), "shop")
	require.NoError(t, err)
	defer s.Close()

	// Act
	require.NoError(t, s.Put(context.Background(), "sid:flexishop_cart", []byte(`[]`)))

	// Assert
	got, err := mr.Get("shop:sid:flexishop_cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer s.Close()
	mr.Close()

	// Act
	err = s.Put(context.Background(), "sid:flexishop_cart", []byte(`[]`))

	// Assert
	assert.Error(t, err)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore("not a url", "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "default is memory", opts: Options{}},
		{name: "memory", opts: Options{Backend: BackendMemory}},
		{name: "file", opts: Options{Backend: BackendFile, DataDir: t.TempDir()}},
		{name: "sqlite default path", opts: Options{Backend: BackendSQLite, DataDir: t.TempDir()}},
		{name: "unknown", opts: Options{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Close())
		})
	}
}

// failingStore fails every call with the configured error.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Put(context.Context, string, []byte) error { return f.err }
func (f failingStore) Delete(context.Context, string) error { return f.err }
func (f failingStore) Close() error { return nil }

func TestSlot(t *testing.T) {
	t.Run("missing slot reads as nil", func(t *testing.T) {
		slot := NewSlot(NewMemoryStore(), "sid", CartSlot)

		data, err := slot.Read(context.Background())

		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Equal(t, "sid:flexishop_cart", slot.Key())
	})

	t.Run("write read clear", func(t *testing.T) {
		ctx := context.Background()
		slot := NewSlot(NewMemoryStore(), "sid", UserSlot)

		require.NoError(t, slot.Write(ctx, []byte(`{"name":"ann"}`)))
		data, err := slot.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"ann"}`, string(data))

		require.NoError(t, slot.Clear(ctx))
		data, err = slot.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("backend failures become PersistenceError", func(t *testing.T) {
		boom := errors.New("disk full")
		slot := NewSlot(failingStore{err: boom}, "sid", CartSlot)

		_, readErr := slot.Read(context.Background())
		writeErr := slot.Write(context.Background(), []byte(`[]`))

		var perr *PersistenceError
		require.ErrorAs(t, readErr, &perr)
		assert.Equal(t, "read", perr.Op)
		require.ErrorAs(t, writeErr, &perr)
		assert.Equal(t, "write", perr.Op)
		assert.ErrorIs(t, writeErr, boom)
	})

	t.Run("sessions do not share slots", func(t *testing.T) {
		ctx := context.Background()
		kv := NewMemoryStore()
		a := NewSlot(kv, "a", CartSlot)
		b := NewSlot(kv, "b", CartSlot)

		require.NoError(t, a.Write(ctx, []byte(`[1]`)))
		data, err := b.Read(ctx)

		require.NoError(t, err)
		assert.Nil(t, data)
	})
}
