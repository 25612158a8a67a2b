/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/services
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tickerlab/backend/internal/api/handlers"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/services"
)

// Services bundles what the handlers need
type Services struct {
	Analysis *services.AnalysisService
	Ingest   *services.IngestService
	Markets  *services.MarketService
	Events   *jobs.EventHub
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc Services) {
	analysisHandler := handlers.NewAnalysisHandler(svc.Analysis, svc.Events)
	ingestHandler := handlers.NewIngestHandler(svc.Ingest)
	marketHandler := handlers.NewMarketHandler(svc.Markets)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Analysis Routes
	analysis := v1.Group("/analysis")
	analysis.Post("", analysisHandler.RunAnalysis)
	analysis.Post("/async", analysisHandler.EnqueueAnalysis)
	analysis.Get("/jobs/stream", analysisHandler.StreamJobEvents)
	analysis.Get("/jobs/:id", analysisHandler.GetJob)

	// Ingestion Routes (called back by the analyzer)
	ingest := v1.Group("/stock-api")
	ingest.Post("", ingestHandler.SavePrices)
	ingest.Post("/image", ingestHandler.SaveImage)
	ingest.Post("/forecast", ingestHandler.SaveForecast)

	// Market Routes
	markets := v1.Group("/markets")
	markets.Get("", marketHandler.GetMarkets)
	markets.Get("/:ticker", marketHandler.GetMarketDetails)
}
