package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := srv.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewWithoutAddress(t *testing.T) {
	client, err := New(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestNewUnreachable(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	addr := srv.Addr()
	srv.Close()
	_, err = New(context.Background(), addr)
	require.Error(t, err)
}

func TestAsynqOpt(t *testing.T) {
	require.Equal(t, "127.0.0.1:6379", AsynqOpt("127.0.0.1:6379").Addr)
}
