package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickerlab/backend/internal/config"
)

func testParams() Params {
	return Params{
		CorrelationID: uuid.NewString(),
		Ticker:        "AAPL",
		Trends:        "iphone",
		StartDate:     time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
	}.WithDefaults()
}

func TestParamsDefaultsAndArgs(t *testing.T) {
	p := testParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultTestSizePct, p.TestSizePct)
	assert.Equal(t, DefaultForecastDays, p.ForecastDays)

	assert.Equal(t, []string{
		"--ticker", "AAPL",
		"--trends", "iphone",
		"--start_date", "2023-01-02",
		"--test_size_pct", "0.15",
		"--forecast_days", "20",
		"--uuid", p.CorrelationID,
	}, p.Args())

	p.Trends = ""
	assert.NotContains(t, p.Args(), "--trends")
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing ticker", func(p *Params) { p.Ticker = "" }},
		{"long ticker", func(p *Params) { p.Ticker = strings.Repeat("A", 21) }},
		{"test size too small", func(p *Params) { p.TestSizePct = 0.01 }},
		{"forecast too long", func(p *Params) { p.ForecastDays = 91 }},
		{"bad correlation id", func(p *Params) { p.CorrelationID = "abc" }},
		{"long trends", func(p *Params) { p.Trends = strings.Repeat("x", 31) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestProcessAnalyzerSuccess(t *testing.T) {
	a := NewProcessAnalyzer([]string{"sh", "-c", `echo "$@"`, "analyzer"})
	p := testParams()

	result, err := a.Analyze(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "--ticker AAPL")
	assert.Contains(t, result.Output, "--uuid "+p.CorrelationID)
	assert.Equal(t, 0, result.ExitCode)
}

func TestProcessAnalyzerExitError(t *testing.T) {
	a := NewProcessAnalyzer([]string{"sh", "-c", "echo partial; echo boom >&2; exit 3", "analyzer"})

	result, err := a.Analyze(context.Background(), testParams())
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "boom", exitErr.Stderr)
	assert.Equal(t, "partial\n", result.Output)
}

func TestProcessAnalyzerTimeout(t *testing.T) {
	a := NewProcessAnalyzer([]string{"sh", "-c", "exec sleep 5", "analyzer"})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Analyze(ctx, testParams())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestProcessAnalyzerUnavailable(t *testing.T) {
	a := NewProcessAnalyzer([]string{"/nonexistent/analyzer-binary"})
	_, err := a.Analyze(context.Background(), testParams())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewProcessAnalyzer(nil).Analyze(context.Background(), testParams())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPAnalyzerSuccess(t *testing.T) {
	var got analyzeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze/sync", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"done"}`))
	}))
	defer server.Close()

	p := testParams()
	result, err := NewHTTPAnalyzer(server.URL + "/").Analyze(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, "2023-01-02", got.StartDate)
	assert.Equal(t, p.CorrelationID, got.UUID)
}

func TestHTTPAnalyzerStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewHTTPAnalyzer(server.URL).Analyze(context.Background(), testParams())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "model crashed", statusErr.Body)
}

func TestHTTPAnalyzerReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"no data for ticker"}`))
	}))
	defer server.Close()

	_, err := NewHTTPAnalyzer(server.URL).Analyze(context.Background(), testParams())
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "no data for ticker", exitErr.Stderr)
}

func TestHTTPAnalyzerTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewHTTPAnalyzer(server.URL).Analyze(ctx, testParams())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPAnalyzerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPAnalyzer(url).Analyze(context.Background(), testParams())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewSelectsMode(t *testing.T) {
	a, err := New(config.AnalyzerConfig{Mode: config.AnalyzerModeProcess, Command: []string{"true"}})
	require.NoError(t, err)
	assert.IsType(t, &ProcessAnalyzer{}, a)

	a, err = New(config.AnalyzerConfig{Mode: config.AnalyzerModeHTTP, URL: "http://stock-python:8000"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPAnalyzer{}, a)

	_, err = New(config.AnalyzerConfig{Mode: "grpc"})
	assert.Error(t, err)
}
