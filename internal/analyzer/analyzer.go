/**
 * @description
 * Contract with the external stock analysis model.
 * The analyzer fetches prices, trains the model and posts its artifacts back through the
 * ingestion endpoints, tagged with the correlation id it was started with.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: parameter validation
 */

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTestSizePct  = 0.15
	DefaultForecastDays = 20

	dateLayout = "2006-01-02"
)

var (
	// ErrTimeout is returned when the analyzer did not finish within its bound
	ErrTimeout = errors.New("analysis timed out")
	// ErrUnavailable is returned when the analyzer could not be started or reached
	ErrUnavailable = errors.New("analyzer unavailable")
)

// ExitError reports a non-zero exit of the analyzer process
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("analyzer exited with code %d: %s", e.Code, e.Stderr)
}

// StatusError reports a non-2xx answer of the analyzer API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analyzer returned status %d: %s", e.StatusCode, e.Body)
}

// Params are the arguments of one analysis run
type Params struct {
	CorrelationID string    `json:"uuid" validate:"required,uuid"`
	Ticker        string    `json:"ticker" validate:"required,max=20"`
	Trends        string    `json:"trends" validate:"max=30"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	TestSizePct   float64   `json:"test_size_pct" validate:"gte=0.05,lte=0.5"`
	ForecastDays  int       `json:"forecast_days" validate:"gte=1,lte=90"`
}

// WithDefaults fills the optional model knobs
func (p Params) WithDefaults() Params {
	if p.TestSizePct == 0 {
		p.TestSizePct = DefaultTestSizePct
	}
	if p.ForecastDays == 0 {
		p.ForecastDays = DefaultForecastDays
	}
	return p
}

var validate = validator.New()

// Validate checks the parameters before anything is started
func (p Params) Validate() error {
	return validate.Struct(p)
}

// Args renders the parameters as command-line flags
func (p Params) Args() []string {
	args := []string{"--ticker", p.Ticker}
	if p.Trends != "" {
		args = append(args, "--trends", p.Trends)
	}
	args = append(args,
		"--start_date", p.StartDate.Format(dateLayout),
		"--test_size_pct", strconv.FormatFloat(p.TestSizePct, 'f', -1, 64),
		"--forecast_days", strconv.Itoa(p.ForecastDays),
		"--uuid", p.CorrelationID,
	)
	return args
}

// Result is what a finished run reports back
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Analyzer runs one analysis and blocks until it finishes or ctx ends
type Analyzer interface {
	Analyze(ctx context.Context, params Params) (*Result, error)
}
