// Package ocr turns bill documents (PDF, photos, plain text) into raw text
// for the extractors.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/config"
	"github.com/sells-group/bill-advisor/internal/resilience"
)

// Extractor extracts text content from a document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Router reads plain-text documents directly and sends everything else to
// the configured OCR backend.
type Router struct {
	backend Extractor
	name    string
}

// NewRouter wraps backend. name is used in logs.
func NewRouter(name string, backend Extractor) *Router {
	return &Router{backend: backend, name: name}
}

// ExtractText implements Extractor.
func (r *Router) ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read %s", path)
		}
		return string(data), nil
	}

	start := time.Now()
	text, err := r.backend.ExtractText(ctx, path)
	if err != nil {
		zap.L().Warn("ocr: extraction failed",
			zap.String("provider", r.name),
			zap.String("path", path),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return "", err
	}
	zap.L().Debug("ocr: extracted text",
		zap.String("provider", r.name),
		zap.String("path", path),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, retry resilience.RetryConfig) (Extractor, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case "local", "":
		return NewRouter("pdftotext", NewPdfToText(cfg.PdfToTextPath)), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		m := NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
		m.retry = retry
		if timeout > 0 {
			m.client.Timeout = timeout
		}
		return NewRouter("mistral", m), nil
	case "azure":
		if cfg.AzureEndpoint == "" || cfg.AzureKey == "" {
			return nil, eris.New("ocr: azure provider requires azure_endpoint and azure_key")
		}
		a := NewAzureRead(cfg.AzureEndpoint, cfg.AzureKey)
		a.retry = retry
		if cfg.PollMillis > 0 {
			a.pollEvery = time.Duration(cfg.PollMillis) * time.Millisecond
		}
		if timeout > 0 {
			a.timeout = timeout
		}
		return NewRouter("azure", a), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// mimeType guesses the upload content type from the file extension.
func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/pdf"
	}
}

// httpStatusError builds the error for a non-2xx vendor reply, marking
// retryable statuses as transient.
func httpStatusError(vendor string, status int, body []byte) error {
	err := eris.Errorf("ocr: %s API returned %d: %s", vendor, status, truncateBody(body))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
