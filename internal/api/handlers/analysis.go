/**
 * @description
 * Analysis API Handlers.
 * Starts analyzer runs (blocking or queued) and exposes their job records and events.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/jobs
 */

package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/services"
)

const heartbeatInterval = 15 * time.Second

type AnalysisHandler struct {
	Service *services.AnalysisService
	Events  *jobs.EventHub
}

func NewAnalysisHandler(service *services.AnalysisService, events *jobs.EventHub) *AnalysisHandler {
	return &AnalysisHandler{Service: service, Events: events}
}

// AnalysisRequest is the body of both analysis endpoints
type AnalysisRequest struct {
	Ticker       string   `json:"ticker" validate:"required,max=20"`
	Trends       string   `json:"trends" validate:"max=30"`
	StartDate    string   `json:"start_date" validate:"required,datetime=2006-01-02,before_today"`
	TestSizePct  *float64 `json:"test_size_pct" validate:"omitempty,gte=0.05,lte=0.5"`
	ForecastDays *int     `json:"forecast_days" validate:"omitempty,gte=1,lte=90"`
}

func (r AnalysisRequest) params() analyzer.Params {
	start, _ := time.Parse(dateLayout, r.StartDate)
	p := analyzer.Params{
		Ticker:    r.Ticker,
		Trends:    r.Trends,
		StartDate: start,
	}
	if r.TestSizePct != nil {
		p.TestSizePct = *r.TestSizePct
	}
	if r.ForecastDays != nil {
		p.ForecastDays = *r.ForecastDays
	}
	return p.WithDefaults()
}

func parseAnalysisRequest(c *fiber.Ctx) (*AnalysisRequest, error) {
	var req AnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, badBody(c, err)
	}
	if err := requestValidate.Struct(req); err != nil {
		return nil, validationFailed(c, err)
	}
	return &req, nil
}

// RunAnalysis runs the analyzer and waits for it
// POST /api/v1/analysis
func (h *AnalysisHandler) RunAnalysis(c *fiber.Ctx) error {
	req, respErr := parseAnalysisRequest(c)
	if req == nil {
		return respErr
	}

	job, result, err := h.Service.Run(c.UserContext(), req.params())
	if err != nil {
		message := "Failed to run analysis"
		if errors.Is(err, analyzer.ErrTimeout) {
			message = fmt.Sprintf("Analysis timed out after %d seconds", int(h.Service.Runner.Timeout().Seconds()))
		}
		logger.Error("Stock analysis error: %v", err)

		body := fiber.Map{
			"success": false,
			"message": message,
			"error":   err.Error(),
		}
		if job != nil {
			body["job_id"] = job.ID
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Analysis finished",
		"data": fiber.Map{
			"output":         result.Output,
			"execution_time": int(h.Service.Runner.Timeout().Seconds()),
			"job_id":         job.ID,
		},
	})
}

// EnqueueAnalysis queues the analysis and returns immediately
// POST /api/v1/analysis/async
func (h *AnalysisHandler) EnqueueAnalysis(c *fiber.Ctx) error {
	req, respErr := parseAnalysisRequest(c)
	if req == nil {
		return respErr
	}

	job, err := h.Service.Enqueue(c.UserContext(), req.params())
	if err != nil {
		logger.Error("Failed to queue analysis for %s: %v", req.Ticker, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to queue analysis",
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Analysis for %s has been queued", job.Ticker),
		"job_id":  job.ID,
	})
}

// GetJob returns the record of one analysis job
// GET /api/v1/analysis/jobs/:id
func (h *AnalysisHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.Service.Status(c.UserContext(), c.Params("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Job not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch job",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}

// StreamJobEvents streams job status changes over SSE
// GET /api/v1/analysis/jobs/stream
func (h *AnalysisHandler) StreamJobEvents(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events, unsubscribe := h.Events.Subscribe()
	requestDone := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		// Open the stream right away so clients see the connection established
		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-requestDone:
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			case payload, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: job\ndata: %s\n\n", payload)
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	return nil
}
