package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	markup := []byte("<html>in stock</html>")
	uri, err := store.PutObject(context.Background(), "snapshots/t1/abc.html", "text/html", markup)
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/t1/abc.html", uri)

	markup[0] = 'X'
	data, contentType, ok := store.Object("snapshots/t1/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html>in stock</html>", string(data), "stored bytes must not alias the caller's slice")
	require.Equal(t, "text/html", contentType)
	require.Equal(t, 1, store.Len())

	_, err = store.PutObject(context.Background(), " ", "text/html", markup)
	require.Error(t, err)
	_, _, ok = store.Object("missing")
	require.False(t, ok)
}
