/**
 * @description
 * Ingestion API Handlers.
 * Endpoints the analyzer posts its artifacts to: price history, chart image and forecast.
 * Each response echoes the posted data, like the analyzer expects.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tickerlab/backend/internal/blob"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/mapping"
	"github.com/tickerlab/backend/internal/services"
	"github.com/tickerlab/backend/internal/store"
)

type IngestHandler struct {
	Service *services.IngestService
}

func NewIngestHandler(service *services.IngestService) *IngestHandler {
	return &IngestHandler{Service: service}
}

// PricesRequest carries one batch of provider-shaped price rows
type PricesRequest struct {
	Ticker    string                   `json:"ticker" validate:"required,max=20"`
	UUID      string                   `json:"uuid" validate:"required"`
	StockData []map[string]interface{} `json:"stock_data" validate:"required"`
}

// ImageRequest carries one base64 chart; "image" is accepted as an alias of "base64"
type ImageRequest struct {
	Ticker string `json:"ticker" validate:"required,max=20"`
	UUID   string `json:"uuid" validate:"required"`
	Base64 string `json:"base64" validate:"required_without=Image"`
	Image  string `json:"image"`
}

// ForecastRequest carries the forecast of one run
type ForecastRequest struct {
	Ticker   string                  `json:"ticker" validate:"required,max=20"`
	UUID     string                  `json:"uuid" validate:"required"`
	Forecast []mapping.ForecastInput `json:"forecast" validate:"required"`
}

// bind decodes the body into dst and returns the raw body for echoing
func bind(c *fiber.Ctx, dst interface{}) (fiber.Map, error) {
	if err := c.BodyParser(dst); err != nil {
		return nil, err
	}
	var echo fiber.Map
	if err := json.Unmarshal(c.Body(), &echo); err != nil {
		return nil, err
	}
	return echo, nil
}

// SavePrices ingests price history
// POST /api/v1/stock-api
func (h *IngestHandler) SavePrices(c *fiber.Ctx) error {
	var req PricesRequest
	data, err := bind(c, &req)
	if err != nil {
		return badBody(c, err)
	}
	if err := requestValidate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	result, err := h.Service.SavePrices(c.UserContext(), req.Ticker, req.UUID, req.StockData)
	if err != nil {
		return ingestFailed(c, "prices", err)
	}

	return c.JSON(fiber.Map{
		"data":    data,
		"summary": result.Summary,
	})
}

// SaveImage ingests a chart image
// POST /api/v1/stock-api/image
func (h *IngestHandler) SaveImage(c *fiber.Ctx) error {
	var req ImageRequest
	data, err := bind(c, &req)
	if err != nil {
		return badBody(c, err)
	}
	if err := requestValidate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	payload := req.Base64
	if payload == "" {
		payload = req.Image
	}

	result, err := h.Service.SaveImage(c.UserContext(), req.Ticker, req.UUID, payload)
	if err != nil {
		return ingestFailed(c, "image", err)
	}

	return c.JSON(fiber.Map{
		"data":       data,
		"stockImage": result.Image,
		"url":        result.URL,
	})
}

// SaveForecast ingests a forecast
// POST /api/v1/stock-api/forecast
func (h *IngestHandler) SaveForecast(c *fiber.Ctx) error {
	var req ForecastRequest
	data, err := bind(c, &req)
	if err != nil {
		return badBody(c, err)
	}
	if err := requestValidate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	result, err := h.Service.SaveForecasts(c.UserContext(), req.Ticker, req.UUID, req.Forecast)
	if err != nil {
		return ingestFailed(c, "forecast", err)
	}

	return c.JSON(fiber.Map{
		"message":       "Forecast saved",
		"data":          data,
		"stockForecast": result.Forecasts,
		"summary":       result.Summary,
	})
}

func ingestFailed(c *fiber.Ctx, kind string, err error) error {
	status := fiber.StatusInternalServerError
	message := "Failed to save " + kind

	switch {
	case errors.Is(err, store.ErrInvalidCorrelationID):
		status = fiber.StatusUnprocessableEntity
		message = "uuid must be a valid UUID"
	case errors.Is(err, store.ErrCorrelationConflict):
		status = fiber.StatusConflict
		message = "uuid already belongs to another ticker"
	case errors.Is(err, blob.ErrInvalidImagePayload):
		status = fiber.StatusUnprocessableEntity
		message = "invalid image payload"
	default:
		logger.Error("Ingest %s failed: %v", kind, err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}
