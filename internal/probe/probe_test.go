package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProber_CheckReturnsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(time.Second)

	code, err := p.Check(context.Background(), srv.URL, "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, err = p.Check(context.Background(), srv.URL+"/", "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestProber_CheckUsesGet(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
	}))
	defer srv.Close()

	_, err := New(time.Second).Check(context.Background(), srv.URL, "/item")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method.Load())
}

func TestProber_CheckJoinsRouteWithoutSlash(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
	}))
	defer srv.Close()

	code, err := New(time.Second).Check(context.Background(), srv.URL+"/", "item")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/item", path.Load())
}

func TestProber_CheckTimesOutWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(50*time.Millisecond).Check(context.Background(), srv.URL, "/slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProber_CheckConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(time.Second).Check(context.Background(), "http://"+addr, "/health")
	assert.Error(t, err)
}

func TestNew_DefaultTimeout(t *testing.T) {
	p := New(0)
	assert.Equal(t, DefaultTimeout, p.client.Timeout)
}
