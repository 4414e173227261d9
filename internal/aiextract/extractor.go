// Package aiextract asks an LLM vendor for the bill fields and turns the
// answer into candidates. Vendors are interchangeable behind Extractor.
package aiextract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
)

// Extractor extracts bill fields from text through an AI vendor.
type Extractor interface {
	Name() string
	ExtractViaAI(ctx context.Context, text string) (model.Candidates, error)
}

// Static returns fixed candidates without calling anyone. The zero value
// returns nothing, which makes the pipeline template-only.
type Static struct {
	Candidates model.Candidates
	Err        error
}

// Name implements Extractor.
func (s Static) Name() string { return "static" }

// ExtractViaAI implements Extractor.
func (s Static) ExtractViaAI(context.Context, string) (model.Candidates, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(model.Candidates, len(s.Candidates))
	for k, v := range s.Candidates {
		v.Source = model.SourceAI
		out[k] = v
	}
	return out, nil
}

// maxInputRunes caps how much bill text is sent to a vendor.
const maxInputRunes = 30000

type settings struct {
	retry       resilience.RetryConfig
	maxTokens   int64
	timeout     time.Duration
	temperature float64
}

func defaultSettings() settings {
	return settings{
		retry:     resilience.DefaultRetryConfig(),
		maxTokens: 1024,
		timeout:   60 * time.Second,
	}
}

// Option tunes a vendor extractor.
type Option func(*settings)

// WithRetry sets the retry policy for vendor calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *settings) { s.retry = cfg }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTimeout bounds each vendor call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func apply(opts []Option) settings {
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}
	return s
}

// run calls a vendor with retries and decodes the reply.
func run(ctx context.Context, vendor string, s settings, call func(ctx context.Context) (string, error)) (model.Candidates, error) {
	retry := s.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(vendor, "extract")
	}

	start := time.Now()
	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return call(ctx)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "aiextract: %s", vendor)
	}

	out, err := DecodeResponse(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "aiextract: %s", vendor)
	}
	zap.L().Debug("aiextract: extracted",
		zap.String("vendor", vendor),
		zap.Int("fields", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= maxInputRunes {
		return text
	}
	return string(r[:maxInputRunes])
}
