package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := []byte("line 1\nline 2")

	require.NoError(t, s.Put(ctx, "a.log", data, DefaultBucket))
	data[0] = 'X'

	got, err := s.Get(ctx, "a.log", DefaultBucket)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2", string(got))

	_, err = s.Get(ctx, "a.log", "other")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewS3Store_StaticCredentials(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.NotNil(t, s.client)
}
