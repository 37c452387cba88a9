package remote_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/pkg/types"
)

// newObjectSource connects to the MinIO server named by MINIO_TEST_ENDPOINT.
// Tests are skipped when it is unset.
func newObjectSource(t *testing.T) *remote.ObjectSource {
	t.Helper()
	endpoint := os.Getenv("MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_TEST_ENDPOINT not set")
	}
	src, err := remote.NewObjectSource(remote.ObjectConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_TEST_SECRET_KEY"),
		Bucket:    "orderscope-test",
		Prefix:    fmt.Sprintf("test-%d", time.Now().UnixNano()),
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, src.Init(context.Background()))
	return src
}

func TestNewObjectSource_RequiresEndpointAndBucket(t *testing.T) {
	_, err := remote.NewObjectSource(remote.ObjectConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = remote.NewObjectSource(remote.ObjectConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestObjectSource_ObjectKey(t *testing.T) {
	src, err := remote.NewObjectSource(remote.ObjectConfig{
		Endpoint: "localhost:9000",
		Bucket:   "b",
		Prefix:   "/orders/",
	})
	require.NoError(t, err)
	assert.Equal(t, "orders/chunk_12.json", src.ObjectKey(12))
}

func TestObjectSource_RoundTrip(t *testing.T) {
	src := newObjectSource(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, src.PutChunk(ctx, i, []types.Record{{
			ID:          fmt.Sprintf("id-%d", i),
			OrderNumber: fmt.Sprintf("#%d", 1000+i),
			CreatedAt:   now,
		}}))
	}

	keys, err := src.ChunkKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	records, err := src.FetchChunk(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "id-2", records[0].ID)
	assert.Equal(t, "#1002", records[0].OrderNumber)

	_, err = src.FetchChunk(ctx, 50)
	assert.True(t, remote.IsNotFound(err))
}
