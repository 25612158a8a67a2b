package analyzer

import (
	"fmt"

	"github.com/tickerlab/backend/internal/config"
)

// New builds the analyzer selected by ANALYZER_MODE
func New(cfg config.AnalyzerConfig) (Analyzer, error) {
	switch cfg.Mode {
	case config.AnalyzerModeProcess:
		return NewProcessAnalyzer(cfg.Command), nil
	case config.AnalyzerModeHTTP:
		return NewHTTPAnalyzer(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported analyzer mode %q", cfg.Mode)
	}
}
