package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
)

func testConfig() *config.HTTPConfig {
	return &config.HTTPConfig{
		Timeout:     2 * time.Second,
		UserAgent:   "wxarchiver-test",
		Referer:     "https://mp.weixin.qq.com/",
		Attempts:    3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wxarchiver-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://mp.weixin.qq.com/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewNopLogger())
	body, ct, err := client.Download(context.Background(), server.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("PNGDATA"), body)
	assert.Equal(t, "image/png", ct)
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewNopLogger())
	body, _, err := client.Download(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDownloadGivesUpAfterAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewNopLogger())
	_, _, err := client.Download(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeServerError))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDownloadDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewNopLogger())
	_, _, err := client.Download(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDownloadFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(testConfig(), logger.NewNopLogger())
	body, _, err := client.Download(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, "moved", string(body))
}

func TestDownloadHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(testConfig(), logger.NewNopLogger())
	_, _, err := client.Download(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadRetriesClientTimeout(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond
	client := NewClient(cfg, logger.NewNopLogger())

	body, ct, err := client.Download(context.Background(), server.URL+"/slow.jpg")
	require.NoError(t, err)
	assert.Equal(t, "late", string(body))
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryable(t *testing.T) {
	timeout := errors.Wrap(errors.ErrorTypeNetwork, context.DeadlineExceeded, "request failed")
	assert.True(t, retryable(timeout))
	assert.False(t, retryable(errors.New(errors.ErrorTypeNotFound, "gone")))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(context.DeadlineExceeded))
}
