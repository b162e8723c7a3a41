package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalResource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.JSON")
	if err := os.WriteFile(path, []byte(`{"cameras":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewResource(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.IsRemote() {
		t.Fatal("expected local resource")
	}
	if res.Ext() != ".json" {
		t.Fatalf("expected ext .json; got %s", res.Ext())
	}
	if res.RemotePath() != res.Path() {
		t.Fatalf("expected RemotePath to match Path for local resources; got %s", res.RemotePath())
	}
}

func TestLocalRelativeResource(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rig.json", "frame.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	parent, err := NewResource(filepath.Join(dir, "rig.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()

	res, err := NewResource("frame.png", parent)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "frame.png" {
		t.Fatalf("expected to read the sibling file; got %q", data)
	}
}

func TestHttpResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cam0.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer server.Close()

	res, err := NewResource(server.URL+"/cam0.png", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if !res.IsRemote() {
		t.Fatal("expected remote resource")
	}
	if res.RemotePath() != "cam0.png" {
		t.Fatalf("expected remote path cam0.png; got %s", res.RemotePath())
	}

	fetchURL := server.URL + "/file-not-found.foo"
	expError := fmt.Sprintf("resource: could not fetch '%s': status %d", fetchURL, 404)
	_, err = NewResource(fetchURL, nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected error to wrap ErrFetchFailed; got %v", err)
	}
}

func TestRelativeResources(t *testing.T) {
	serverHits := 0
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHits++
		switch r.URL.Path {
		case "/rigs/rig.json", "/rigs/cam1.png":
			w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	res1, err := NewResource(server.URL+"/rigs/rig.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res1.Close()
	res2, err := NewResource("cam1.png", res1)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Close()

	if serverHits != 2 {
		t.Fatalf("expected server to receive 2 requests; got %d", serverHits)
	}
}

func TestResourceContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewResourceContext(ctx, server.URL+"/slow.png", nil)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed; got %v", err)
	}
}

func TestUnsupportedResourceScheme(t *testing.T) {
	expError := "resource: unsupported scheme 'gopher'"
	_, err := NewResource("gopher://digging.go", nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected error to wrap ErrUnsupportedScheme; got %v", err)
	}
}

func TestResourceConnectionRefusedError(t *testing.T) {
	_, err := NewResource("http://localhost:12345/foo.png", nil)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected to get 'connection refused error'; got %v", err)
	}
}

func TestResourceFromStream(t *testing.T) {
	res := NewResourceFromStream("embedded.json", strings.NewReader("payload"))
	defer res.Close()

	if res.IsRemote() {
		t.Fatal("expected stream resource to be local")
	}
	data, err := io.ReadAll(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("expected payload; got %q", data)
	}
}
