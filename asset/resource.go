// Package asset provides access to the files consumed by the depth pipeline:
// rig configurations and camera frames, stored either locally or behind an
// http/https URL.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("resource: unsupported scheme")
	ErrFetchFailed       = errors.New("resource: could not fetch")
)

// FetchTimeout bounds remote fetches issued through NewResource.
var FetchTimeout = 30 * time.Second

// Resource wraps a streamable local file or remote object.
type Resource struct {
	io.ReadCloser
	url *url.URL

	cancel context.CancelFunc
}

// Path returns the location of this resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// RemotePath returns the base name of a remote resource or the same value as
// Path() for local files.
func (r *Resource) RemotePath() string {
	if r.IsRemote() {
		return filepath.Base(r.url.Path)
	}
	return r.Path()
}

// IsRemote returns true if the resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Ext returns the lower-cased file extension of the resource including the
// leading dot.
func (r *Resource) Ext() string {
	return strings.ToLower(filepath.Ext(r.url.Path))
}

// Close the underlying stream and abort any in-flight remote fetch.
func (r *Resource) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// NewResource opens a resource using a FetchTimeout bound for remote paths.
// See NewResourceContext.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
	res, err := NewResourceContext(ctx, pathToResource, relTo)
	if err != nil {
		cancel()
		return nil, err
	}
	res.cancel = cancel
	return res, nil
}

// NewResourceContext opens a resource stream. If relTo is specified and
// pathToResource does not define a scheme, the path is resolved relative to
// the directory containing relTo.
//
// http/https URLs are fetched with net/http using ctx. The caller must close
// the returned resource.
func NewResourceContext(ctx context.Context, pathToResource string, relTo *Resource) (*Resource, error) {
	resURL, err := url.Parse(strings.ReplaceAll(pathToResource, `\`, `/`))
	if err != nil {
		return nil, err
	}

	if resURL.Scheme == "" && relTo != nil && !filepath.IsAbs(resURL.Path) {
		resURL, err = resolveRelative(resURL.Path, relTo)
		if err != nil {
			return nil, err
		}
	}

	var reader io.ReadCloser
	switch resURL.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(resURL.Path))
		if err != nil {
			return nil, err
		}
	case "http", "https":
		reader, err = fetch(ctx, resURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnsupportedScheme, resURL.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		url:        resURL,
	}, nil
}

// NewResourceFromStream wraps a reader into a resource with the given name.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	resURL, err := url.Parse(name)
	if err != nil {
		resURL = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        resURL,
	}
}

func resolveRelative(path string, relTo *Resource) (*url.URL, error) {
	parent := *relTo.url
	prefix := parent.Path
	if parent.Scheme == "" {
		abs, err := filepath.Abs(parent.Path)
		if err != nil {
			return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", parent.String(), err)
		}
		prefix = abs
	}
	parent.Path = filepath.Dir(prefix) + "/" + path
	return &parent, nil
}

func fetch(ctx context.Context, resURL *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w '%s': %v", ErrFetchFailed, resURL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w '%s': %v", ErrFetchFailed, resURL, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w '%s': status %d", ErrFetchFailed, resURL, resp.StatusCode)
	}
	return resp.Body, nil
}
