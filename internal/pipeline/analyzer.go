// Package pipeline runs a bill from raw text (or a document) to a
// reconciled, persisted profile and an offer ranking.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bill-advisor/internal/aiextract"
	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/ocr"
	"github.com/sells-group/bill-advisor/internal/provider"
	"github.com/sells-group/bill-advisor/internal/reconcile"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/internal/store"
	"github.com/sells-group/bill-advisor/internal/validate"
)

// ErrEmptyInput is returned when there is neither bill text nor an AI
// response to work from.
var ErrEmptyInput = errors.New("pipeline: empty bill text")

// Deps are the collaborators an Analyzer uses. Only Template and
// Reconciler are needed for extraction; the rest switch features on.
type Deps struct {
	Template   *extract.Extractor
	AI         aiextract.Extractor
	Breaker    *resilience.Breaker
	Reconciler *reconcile.Reconciler
	OCR        ocr.Extractor
	Store      store.Store
	Links      *provider.LinkChecker
}

// Options are the policy switches of a run.
type Options struct {
	// Rank ranks the profile against the stored catalog after saving it.
	Rank bool
	// SplitCombined splits a combined bill's joint total before ranking.
	SplitCombined    bool
	ElectricityShare float64
	// Default consumption filled in before ranking. Zero disables.
	DefaultKWh float64
	DefaultSmc float64
	// CacheTTL bounds how long a stored ranking is reused. Zero means
	// until the catalog changes.
	CacheTTL    time.Duration
	Concurrency int
}

// Input is one bill to analyze. AIResponse, when set, is a raw AI JSON
// answer used instead of calling the AI extractor.
type Input struct {
	Text       string `json:"text"`
	AIResponse string `json:"ai_response,omitempty"`
}

// Analysis is the outcome of one run.
type Analysis struct {
	Profile     model.BillProfile                             `json:"profile"`
	Confidence  float64                                       `json:"confidence"`
	Violations  []string                                      `json:"violations,omitempty"`
	Resolutions map[model.FieldName]reconcile.FieldResolution `json:"resolutions,omitempty"`
	AIProvider  string                                        `json:"ai_provider,omitempty"`
	AIError     string                                        `json:"ai_error,omitempty"`
	Split       []model.BillProfile                           `json:"split,omitempty"`
	Ranking     []model.RankedOffer                           `json:"ranking,omitempty"`
	Cached      bool                                          `json:"cached,omitempty"`
}

// Analyzer orchestrates extraction, reconciliation, persistence and
// ranking.
type Analyzer struct {
	deps Deps
	opts Options
}

// New creates an Analyzer, filling unset collaborators with template-only
// defaults.
func New(deps Deps, opts Options) *Analyzer {
	if deps.Template == nil {
		deps.Template = extract.New(nil)
	}
	if deps.AI == nil {
		deps.AI = aiextract.Static{}
	}
	if deps.Reconciler == nil {
		deps.Reconciler = reconcile.New(nil)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.ElectricityShare <= 0 || opts.ElectricityShare >= 1 {
		opts.ElectricityShare = 0.6
	}
	return &Analyzer{deps: deps, opts: opts}
}

// Options returns the options in use.
func (a *Analyzer) Options() Options { return a.opts }

// Extract runs the template and AI extractors concurrently over the same
// text and reconciles their candidates. An AI failure is not fatal: the
// profile is built from the template side and the error is reported on
// the Analysis.
func (a *Analyzer) Extract(ctx context.Context, in Input) (*Analysis, error) {
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.AIResponse) == "" {
		return nil, ErrEmptyInput
	}

	var (
		tmpl  model.Candidates
		ai    model.Candidates
		aiErr error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tmpl = a.deps.Template.Extract(in.Text)
		return nil
	})
	g.Go(func() error {
		ai, aiErr = a.extractAI(gCtx, in)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: extract")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: extract")
	}

	res := a.deps.Reconciler.MergeDetailed(tmpl, ai)
	report := validate.ValidateRanges(res.Profile)

	out := &Analysis{
		Profile:     res.Profile,
		Confidence:  validate.ConfidenceScore(res.Profile),
		Violations:  append(res.Violations(), report.Violations...),
		Resolutions: res.Resolutions,
		AIProvider:  a.aiName(in),
	}
	if aiErr != nil {
		out.AIError = aiErr.Error()
	}

	zap.L().Debug("pipeline: extracted",
		zap.Int("template_fields", len(tmpl)),
		zap.Int("ai_fields", len(ai)),
		zap.Int("fields_resolved", res.FieldsResolved),
		zap.Float64("confidence", out.Confidence),
	)
	return out, nil
}

func (a *Analyzer) aiName(in Input) string {
	if in.AIResponse != "" {
		return "request"
	}
	return a.deps.AI.Name()
}

func (a *Analyzer) extractAI(ctx context.Context, in Input) (model.Candidates, error) {
	if in.AIResponse != "" {
		c, err := aiextract.DecodeResponse(in.AIResponse)
		if err != nil {
			zap.L().Warn("pipeline: supplied AI response rejected", zap.Error(err))
			return nil, err
		}
		return c, nil
	}

	call := a.deps.AI.ExtractViaAI
	var (
		c   model.Candidates
		err error
	)
	if a.deps.Breaker != nil {
		c, err = resilience.Call(ctx, a.deps.Breaker, func(ctx context.Context) (model.Candidates, error) {
			return call(ctx, in.Text)
		})
	} else {
		c, err = call(ctx, in.Text)
	}
	if err != nil {
		zap.L().Warn("pipeline: AI extraction failed, continuing with template only",
			zap.String("provider", a.deps.AI.Name()),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return nil, err
	}
	return c, nil
}

// Analyze extracts a profile, saves it when a store is configured and,
// with Options.Rank, ranks it against the stored catalog.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Analysis, error) {
	out, err := a.Extract(ctx, in)
	if err != nil {
		return nil, err
	}

	if a.deps.Store != nil {
		rec := &store.ProfileRecord{Profile: out.Profile, Confidence: out.Confidence, Violations: out.Violations}
		if err := a.deps.Store.SaveProfile(ctx, rec); err != nil {
			return nil, eris.Wrap(err, "pipeline: save profile")
		}
		out.Profile = rec.Profile
	}

	if a.opts.Rank {
		rr, err := a.Rank(ctx, out.Profile)
		if err != nil {
			return nil, err
		}
		out.Ranking = rr.Offers
		out.Split = rr.Split
		out.Cached = rr.Cached
	}

	zap.L().Info("pipeline: bill analyzed",
		zap.String("profile_id", out.Profile.ID),
		zap.String("kind", string(out.Profile.Kind())),
		zap.Float64("confidence", out.Confidence),
		zap.Int("offers_ranked", len(out.Ranking)),
		zap.Bool("ai_failed", out.AIError != ""),
	)
	return out, nil
}

// AnalyzeFile reads a document through the OCR collaborator and analyzes
// its text.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Analysis, error) {
	text, err := a.ReadDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, Input{Text: text})
}

// ReadDocument returns the text of a bill document.
func (a *Analyzer) ReadDocument(ctx context.Context, path string) (string, error) {
	if a.deps.OCR == nil {
		return "", eris.Errorf("pipeline: no OCR extractor configured for %s", path)
	}
	text, err := a.deps.OCR.ExtractText(ctx, path)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: read %s", path)
	}
	return text, nil
}

// BatchResult is the outcome for one document of a batch.
type BatchResult struct {
	Path     string    `json:"path"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// AnalyzeBatch analyzes documents with bounded concurrency. A failing
// document does not stop the batch; results keep the input order.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, paths []string) []BatchResult {
	results := make([]BatchResult, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i].Path = path
			an, err := a.AnalyzeFile(gCtx, path)
			if err != nil {
				zap.L().Warn("pipeline: document failed", zap.String("path", path), zap.Error(err))
				results[i].Error = err.Error()
				return nil
			}
			results[i].Analysis = an
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("documents", len(paths)),
		zap.Int("failed", failed),
	)
	return results
}
