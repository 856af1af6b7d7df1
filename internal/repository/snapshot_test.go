package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage/memory"
	redisstore "github.com/marmota-alpina/gostack-desafio-08/internal/storage/redis"
)

type failingKV struct{ memory.Store }

func (f *failingKV) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (f *failingKV) SetItem(context.Context, string, string) error {
	return errors.New("connection refused")
}

func (f *failingKV) RemoveItem(context.Context, string) error {
	return errors.New("connection refused")
}

func TestLoad_Absent(t *testing.T) {
	repo := NewSnapshotRepository(memory.New(), "")

	snap, err := repo.Load(context.Background()).Result()
	require.NoError(t, err)
	assert.False(t, snap.Found)
	assert.Empty(t, snap.Products)
	assert.Equal(t, storage.DefaultKey, repo.Key())
}

func TestLoad_Present(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	require.NoError(t, kv.SetItem(ctx, storage.DefaultKey,
		`[{"id":"a","title":"T","image_url":"u","price":10,"quantity":3}]`))

	snap, err := NewSnapshotRepository(kv, "").Load(ctx).Result()
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.Equal(t, domain.Products{{ID: "a", Title: "T", ImageURL: "u", Price: 10, Quantity: 3}}, snap.Products)
}

func TestLoad_Malformed(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	require.NoError(t, kv.SetItem(ctx, "cart", `{"not":"an array"`))

	_, err := NewSnapshotRepository(kv, "cart").Load(ctx).Result()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestLoad_RejectsBrokenInvariants(t *testing.T) {
	tests := []struct {
		name, raw, want string
	}{
		{"duplicate id", `[{"id":"a","quantity":1},{"id":"a","quantity":2}]`, `duplicate line item id "a"`},
		{"negative quantity", `[{"id":"a","quantity":-1}]`, "negative quantity"},
		{"missing id", `[{"title":"T","quantity":1}]`, "has no id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := memory.New()
			ctx := context.Background()
			require.NoError(t, kv.SetItem(ctx, storage.DefaultKey, tt.raw))

			_, err := NewSnapshotRepository(kv, "").Load(ctx).Result()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BackendError(t *testing.T) {
	_, err := NewSnapshotRepository(&failingKV{}, "").Load(context.Background()).Result()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedSnapshot)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSave_NilEncodesAsEmptyArray(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	repo := NewSnapshotRepository(kv, "")

	require.NoError(t, repo.Save(ctx, nil))

	raw, found, err := kv.GetItem(ctx, storage.DefaultKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", raw)
}

func TestSave_WireFormat(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	repo := NewSnapshotRepository(kv, "")

	require.NoError(t, repo.Save(ctx, domain.Products{{ID: "a", Title: "T", ImageURL: "u", Price: 10, Quantity: 2}}))

	raw, _, err := kv.GetItem(ctx, storage.DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","title":"T","image_url":"u","price":10,"quantity":2}]`, raw)
}

func TestSaveAndClear_Errors(t *testing.T) {
	repo := NewSnapshotRepository(&failingKV{}, "")
	ctx := context.Background()

	assert.ErrorContains(t, repo.Save(ctx, domain.Products{}), "save cart snapshot")
	assert.ErrorContains(t, repo.Clear(ctx), "clear cart snapshot")
}

func TestSnapshotRepository_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewSnapshotRepository(redisstore.New(client, "", time.Hour), "")
	ctx := context.Background()
	items := domain.Products{
		{ID: "a", Title: "A", Price: 1.5, Quantity: 1},
		{ID: "b", Title: "B", Price: 2, Quantity: 4},
	}

	require.NoError(t, repo.Save(ctx, items))
	assert.True(t, mr.Exists(storage.DefaultKey))

	snap, err := repo.Load(ctx).Result()
	require.NoError(t, err)
	assert.Equal(t, items, snap.Products)

	require.NoError(t, repo.Clear(ctx))
	snap, err = repo.Load(ctx).Result()
	require.NoError(t, err)
	assert.False(t, snap.Found)
}
