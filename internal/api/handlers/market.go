/**
 * @description
 * Market API Handlers.
 * Exposes the tracked instruments and the per-ticker dashboard view.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tickerlab/backend/internal/services"
	"github.com/tickerlab/backend/internal/store"
)

type MarketHandler struct {
	Service *services.MarketService
}

func NewMarketHandler(service *services.MarketService) *MarketHandler {
	return &MarketHandler{Service: service}
}

// GetMarkets returns every tracked instrument
// GET /api/v1/markets
func (h *MarketHandler) GetMarkets(c *fiber.Ctx) error {
	markets, err := h.Service.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch markets",
		})
	}
	return c.JSON(fiber.Map{"data": markets})
}

// GetMarketDetails returns latest prices, chart and current forecast of a ticker
// GET /api/v1/markets/:ticker
func (h *MarketHandler) GetMarketDetails(c *fiber.Ctx) error {
	details, err := h.Service.Details(c.UserContext(), c.Params("ticker"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Market not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch market details",
		})
	}
	return c.JSON(details)
}
