package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "snapshots"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: " "})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "snapshots", Prefix: "/restock/"})
	require.NoError(t, err)
	require.Equal(t, "restock/t1/abc.html", store.ObjectName("/t1/abc.html"))

	_, err = store.PutObject(context.Background(), "", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestObjectNameWithoutPrefix(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "snapshots"}
	require.Equal(t, "t1/abc.html", store.ObjectName("t1/abc.html"))
}
