package daemon

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serveRaw answers every connection on a fresh unix socket with reply and
// records what the client sent.
func serveRaw(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "h.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	got := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 512)
			n, _ := conn.Read(buf)
			got <- string(buf[:n])
			_, _ = conn.Write([]byte(reply))
			conn.Close()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	return sock, got
}

func TestRawProber(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		sock, got := serveRaw(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK")
		require.True(t, RawProber{Socket: sock, Timeout: time.Second}.Probe(context.Background()))
		require.Equal(t, pingRequest, <-got)
	})

	t.Run("unhealthy", func(t *testing.T) {
		sock, _ := serveRaw(t, "HTTP/1.1 503 Service Unavailable\r\n\r\n")
		require.False(t, RawProber{Socket: sock, Timeout: time.Second}.Probe(context.Background()))
	})

	t.Run("no socket", func(t *testing.T) {
		sock := filepath.Join(t.TempDir(), "missing.sock")
		require.False(t, RawProber{Socket: sock}.Probe(context.Background()))
	})

	t.Run("not a socket", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		require.False(t, RawProber{Socket: path}.Probe(context.Background()))
	})
}

func TestEngineProber(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "e.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/_ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Api-Version", "1.47")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	require.True(t, EngineProber{Socket: sock, Timeout: time.Second}.Probe(context.Background()))
	require.False(t, EngineProber{Socket: filepath.Join(t.TempDir(), "none.sock"), Timeout: time.Second}.Probe(context.Background()))
}

func TestBinaryLocator(t *testing.T) {
	t.Run("app bundle", func(t *testing.T) {
		app := filepath.Join(t.TempDir(), "ArcBox.app")
		macos := filepath.Join(app, "Contents", "MacOS")
		require.NoError(t, os.MkdirAll(macos, 0o755))
		exe := writeNamed(t, macos, "arcbox-desktop")
		daemonBin := writeNamed(t, macos, "arcbox")

		root, ok := bundleRoot(exe)
		require.True(t, ok)
		require.Equal(t, app, root)

		got, err := BinaryLocator{Name: "arcbox", Executable: exe}.Locate()
		require.NoError(t, err)
		require.Equal(t, daemonBin, got)
	})

	t.Run("next to executable", func(t *testing.T) {
		dir := t.TempDir()
		exe := writeNamed(t, dir, "arcbox-desktop")
		daemonBin := writeNamed(t, dir, "arcbox-next-test")

		_, ok := bundleRoot(exe)
		require.False(t, ok)

		got, err := BinaryLocator{Name: "arcbox-next-test", Executable: exe}.Locate()
		require.NoError(t, err)
		require.Equal(t, daemonBin, got)
	})

	t.Run("explicit path", func(t *testing.T) {
		bin := writeNamed(t, t.TempDir(), "custom")
		got, err := BinaryLocator{Name: "arcbox", Path: bin}.Locate()
		require.NoError(t, err)
		require.Equal(t, bin, got)

		_, err = BinaryLocator{Name: "arcbox", Path: bin + "-missing"}.Locate()
		require.ErrorIs(t, err, errBinaryNotFound)
	})

	t.Run("nowhere", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		exe := writeNamed(t, t.TempDir(), "arcbox-desktop")
		_, err := BinaryLocator{Name: "arcbox-definitely-absent", Executable: exe}.Locate()
		require.ErrorIs(t, err, errBinaryNotFound)
	})
}

func writeNamed(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}
