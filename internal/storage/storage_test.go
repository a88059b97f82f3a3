package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	s := NewLocalStorage(dir)
	ctx := context.Background()

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "missing directory lists as empty")

	location, err := s.Store(ctx, "danmaku_BV1_20260101_090000.json", []byte(`{"bvid":"BV1"}`))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(location))
	assert.Equal(t, "danmaku_BV1_20260101_090000.json", filepath.Base(location))

	_, err = s.Store(ctx, "other.json", []byte(`{}`))
	require.NoError(t, err)

	data, err := s.Retrieve(ctx, "danmaku_BV1_20260101_090000.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"bvid":"BV1"}`, string(data))

	names, err = s.List(ctx, "danmaku_")
	require.NoError(t, err)
	assert.Equal(t, []string{"danmaku_BV1_20260101_090000.json"}, names)

	require.NoError(t, s.Delete(ctx, "other.json"))
	_, err = s.Retrieve(ctx, "other.json")
	assert.Error(t, err)
}

func TestLocalStorage_RejectsPaths(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name string
		file string
	}{
		{name: "Empty name", file: ""},
		{name: "Parent directory", file: "../escape.json"},
		{name: "Nested path", file: "a/b.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Store(ctx, tt.file, []byte("x"))
			assert.Error(t, err)
		})
	}
}

func TestNewAzureStorage_Validation(t *testing.T) {
	_, err := NewAzureStorage(context.Background(), "", "artifacts")
	assert.EqualError(t, err, "storage account name is required")

	_, err = NewAzureStorage(context.Background(), "account", "")
	assert.EqualError(t, err, "storage container name is required")
}
