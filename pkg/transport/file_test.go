package transport_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"novafc/pkg/transport"
)

func TestOpenFileReadsToEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.ntl")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02, 0x03}, 0o644))

	f, err := transport.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestFollowFilePicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.ntl")
	require.NoError(t, os.WriteFile(path, []byte{0x01}, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := transport.FollowFile(ctx, path, transport.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, buf[:n])

	go func() {
		time.Sleep(50 * time.Millisecond)
		w, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer w.Close()
		_, _ = w.Write([]byte{0x02, 0x03})
	}()

	got := make([]byte, 0, 2)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		n, err := f.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, []byte{0x02, 0x03}, got)
}

func TestFollowFileEndsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.ntl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	f, err := transport.FollowFile(ctx, path)
	require.NoError(t, err)
	defer f.Close()

	cancel()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}
