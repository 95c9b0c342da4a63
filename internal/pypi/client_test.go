package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newIndex(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	server := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pypi/cowsay/json" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]string{
				"name":    "cowsay",
				"version": "6.1",
				"summary": "The famous cowsay",
			},
		})
	})

	c := NewClient(server.URL)
	pkg, err := c.Metadata(context.Background(), "cowsay")
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Name != "cowsay" || pkg.Version != "6.1" {
		t.Errorf("pkg = %+v", pkg)
	}
}

func TestMetadataNotFound(t *testing.T) {
	t.Parallel()

	server := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	c := NewClient(server.URL)
	_, err := c.Metadata(context.Background(), "no-such-package")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	ok, err := c.Exists(context.Background(), "no-such-package")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Exists = true for 404")
	}
}

func TestMetadataRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]string{"name": "flaky", "version": "1.0"},
		})
	})

	c := NewClient(server.URL)
	pkg, err := c.Metadata(context.Background(), "flaky")
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Name != "flaky" {
		t.Errorf("pkg = %+v", pkg)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestMetadataCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]string{"name": "cached", "version": "1.0"},
		})
	})

	c := NewClient(server.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.Metadata(context.Background(), "cached"); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (cached)", calls.Load())
	}
}

func TestMetadataCachesNegative(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	})

	c := NewClient(server.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.Metadata(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (negative cached)", calls.Load())
	}
}
