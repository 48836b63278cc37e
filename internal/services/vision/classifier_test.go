package vision

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "WasteFlow/pkg/http"
)

func TestClassifierSendsMultipartImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "bottle.png", hdr.Filename)
		assert.Equal(t, []byte{1, 2, 3}, data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"class":"PET","confidence":0.93}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Classify(context.Background(), []byte{1, 2, 3}, "/tmp/bottle.png")
	require.NoError(t, err)
	assert.Equal(t, "PET", got.Class)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
}

func TestClassifierUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Classify(context.Background(), []byte{1}, "x.jpg")
	require.Error(t, err)
	var se *pkghttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestClassifierRejectsEmptyImage(t *testing.T) {
	_, err := New("http://unused").Classify(context.Background(), nil, "x.jpg")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestClassifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"class":"Steel","confidence":0.5}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, WithRetries(3)).Classify(context.Background(), []byte{1}, "x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Steel", got.Class)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifierDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithRetries(3)).Classify(context.Background(), []byte{1}, "x.jpg")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
