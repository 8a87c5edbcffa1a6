package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trendsync/internal/trends"
)

var testKey = trends.FetchKey{Keyword: "pepperstone", Market: "SG"}

func testWindow() trends.DateRange {
	to := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return trends.DateRange{From: to.AddDate(0, 0, -7), To: to}
}

func TestFetchInterestDecodesPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/interest", r.URL.Path)
		require.Equal(t, "pepperstone", r.URL.Query().Get("keyword"))
		require.Equal(t, "SG", r.URL.Query().Get("geo"))
		require.Equal(t, "2026-08-13", r.URL.Query().Get("from"))
		require.Equal(t, "2026-08-20", r.URL.Query().Get("to"))
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"keyword": "pepperstone",
			"geo": "SG",
			"points": [
				{"date": "2026-08-14", "value": 37},
				{"date": "2026-08-15", "value": 41, "partial": true}
			]
		}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	obs, err := client.FetchInterest(context.Background(), testKey, testWindow())
	require.NoError(t, err)
	require.Equal(t, "pepperstone", obs.Keyword)
	require.Equal(t, "SG", obs.Geo)
	require.Len(t, obs.Points, 2)
	require.NotNil(t, obs.Points[0].Value)
	require.Equal(t, 37.0, *obs.Points[0].Value)
	require.True(t, obs.Points[1].Partial)
}

func TestFetchInterestClassifiesThrottling(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.FetchInterest(context.Background(), testKey, testWindow())
	require.ErrorIs(t, err, trends.ErrThrottled)

	var thr *trends.ThrottledError
	require.True(t, errors.As(err, &thr))
	require.Equal(t, 7*time.Second, thr.RetryAfter)
}

func TestFetchInterestClassifiesServerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.FetchInterest(context.Background(), testKey, testWindow())
	require.ErrorIs(t, err, trends.ErrTransient)
}

func TestFetchInterestClassifiesClientErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.FetchInterest(context.Background(), testKey, testWindow())
	require.ErrorIs(t, err, trends.ErrPermanent)
}

func TestFetchInterestClassifiesUndecodableBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.FetchInterest(context.Background(), testKey, testWindow())
	require.ErrorIs(t, err, trends.ErrMalformedResponse)
}

func TestFetchInterestClassifiesTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.FetchInterest(context.Background(), testKey, testWindow())
	require.ErrorIs(t, err, trends.ErrTransient)
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
