package bili_archiver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFetcherRetriesUntilSuccess(t *testing.T) {
	assert := assert_.New(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := NewFetcher(WithRetryPolicy(3, time.Millisecond))
	path := filepath.Join(t.TempDir(), "out.bin")
	assert.True(f.Fetch(context.Background(), server.URL, path))
	assert.EqualValues(3, calls)

	data, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Equal("payload", string(data))
}

func TestFetcherGivesUpAfterConfiguredAttempts(t *testing.T) {
	assert := assert_.New(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := NewFetcher(WithRetryPolicy(3, time.Millisecond))
	assert.False(f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "out.bin")))
	assert.EqualValues(3, calls)
}

func TestFetcherOverwritesExistingFile(t *testing.T) {
	assert := assert_.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	assert.NoError(os.WriteFile(path, []byte("something much longer than the replacement"), 0644))

	f := NewFetcher()
	assert.True(f.Fetch(context.Background(), server.URL, path))
	data, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Equal("new", string(data))
}

func TestFetcherSendsConfiguredHeaders(t *testing.T) {
	assert := assert_.New(t)
	var referer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("Referer", "https://www.bilibili.com")
	f := NewFetcher(WithHeader(header))
	assert.True(f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "out.bin")))
	assert.Equal("https://www.bilibili.com", referer)
}

func TestFetcherReportsProgress(t *testing.T) {
	assert := assert_.New(t)
	payload := make([]byte, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var downloaded, expected int
	f := NewFetcher(WithProgress(func(d int, e int) {
		downloaded = d
		expected = e
	}))
	assert.True(f.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "out.bin")))
	assert.Equal(len(payload), downloaded)
	assert.Equal(len(payload), expected)
}
