package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tickerlab/backend/internal/logger"
)

const maxErrorBody = 4 << 10

// HTTPAnalyzer drives the analysis API of the model container (POST /analyze/sync)
type HTTPAnalyzer struct {
	baseURL    string
	httpClient *http.Client
}

type analyzeRequest struct {
	Ticker       string  `json:"ticker"`
	Trends       string  `json:"trends"`
	StartDate    string  `json:"start_date"`
	TestSizePct  float64 `json:"test_size_pct"`
	ForecastDays int     `json:"forecast_days"`
	UUID         string  `json:"uuid"`
}

type analyzeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// NewHTTPAnalyzer creates a new HTTPAnalyzer.
// The deadline comes from the caller's context, so the client itself has no timeout.
func NewHTTPAnalyzer(baseURL string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, params Params) (*Result, error) {
	payload := analyzeRequest{
		Ticker:       params.Ticker,
		Trends:       params.Trends,
		StartDate:    params.StartDate.Format(dateLayout),
		TestSizePct:  params.TestSizePct,
		ForecastDays: params.ForecastDays,
		UUID:         params.CorrelationID,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze/sync", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Result{Duration: time.Since(start)}, fmt.Errorf("%w after %v", ErrTimeout, time.Since(start).Round(time.Second))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	result := &Result{Duration: time.Since(start)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Error("Analyzer API error: %d - %s", resp.StatusCode, string(respBody))
		result.ExitCode = resp.StatusCode
		return result, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return result, fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	result.Output = decoded.Message
	if !decoded.Success {
		result.ExitCode = 1
		return result, &ExitError{Code: 1, Stderr: decoded.Message}
	}
	return result, nil
}
