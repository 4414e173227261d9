package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/aiextract"
	"github.com/sells-group/bill-advisor/internal/config"
	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/ocr"
	"github.com/sells-group/bill-advisor/internal/pipeline"
	"github.com/sells-group/bill-advisor/internal/provider"
	"github.com/sells-group/bill-advisor/internal/reconcile"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/internal/store"
	anthropicpkg "github.com/sells-group/bill-advisor/pkg/anthropic"
)

// appEnv holds the collaborators built from config for one command.
type appEnv struct {
	Store    store.Store // nil unless the mode needs persistence
	Resolver *provider.Resolver
	Template *extract.Extractor
	Analyzer *pipeline.Analyzer

	closers []io.Closer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for _, c := range e.closers {
		_ = c.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// envOptions selects which collaborators initEnv builds.
type envOptions struct {
	Mode      string
	WithStore bool
	WithAI    bool
	WithOCR   bool
}

// initEnv validates config for the mode and builds the analyzer and its
// collaborators. Callers should defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	if err := cfg.Validate(opts.Mode); err != nil {
		return nil, err
	}

	resolver, err := initResolver(cfg.Providers)
	if err != nil {
		return nil, err
	}
	rec, err := initReconciler(cfg.Reconcile)
	if err != nil {
		return nil, err
	}

	env := &appEnv{Resolver: resolver, Template: extract.New(resolver)}
	deps := pipeline.Deps{Template: env.Template, Reconciler: rec}

	if opts.WithAI {
		ai, closer, err := initAI(ctx, cfg.AI)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			env.closers = append(env.closers, closer)
		}
		deps.AI = ai
		deps.Breaker = resilience.NewBreaker(ai.Name(), cfg.AI.BreakerThreshold,
			time.Duration(cfg.AI.BreakerCooldownSecs)*time.Second)
	}

	if opts.WithOCR {
		retry := resilience.FromSettings(cfg.AI.MaxAttempts, cfg.AI.InitialBackoffMs, 0)
		deps.OCR, err = ocr.NewExtractor(cfg.OCR, retry)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	if opts.WithStore {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		deps.Store = st
	}

	if cfg.Providers.CheckLinks {
		client := &http.Client{Timeout: time.Duration(cfg.Providers.LinkTimeoutSecs) * time.Second}
		deps.Links = provider.NewLinkChecker(resolver, client)
	}

	aopts := analyzerOptions(cfg)
	aopts.Rank = opts.WithStore
	env.Analyzer = pipeline.New(deps, aopts)
	return env, nil
}

func analyzerOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		SplitCombined:    c.Reconcile.SplitCombined,
		ElectricityShare: c.Reconcile.ElectricityShare,
		DefaultKWh:       c.Ranking.DefaultKWh,
		DefaultSmc:       c.Ranking.DefaultSmc,
		CacheTTL:         time.Duration(c.Ranking.CacheTTLMins) * time.Minute,
		Concurrency:      c.Batch.Concurrency,
	}
}

func initResolver(c config.ProvidersConfig) (*provider.Resolver, error) {
	if c.RulesFile == "" {
		return provider.NewResolver(nil), nil
	}
	rules, err := provider.LoadRules(c.RulesFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("provider rules loaded", zap.String("file", c.RulesFile), zap.Int("rules", len(rules)))
	return provider.NewResolver(rules), nil
}

// initReconciler builds the merge policy: a policy file when configured,
// otherwise the thresholds from config.
func initReconciler(c config.ReconcileConfig) (*reconcile.Reconciler, error) {
	if c.PolicyFile != "" {
		rc, err := reconcile.LoadConfig(c.PolicyFile)
		if err != nil {
			return nil, err
		}
		return reconcile.New(rc), nil
	}
	rc := reconcile.DefaultConfig()
	if c.TemplateThreshold > 0 {
		rc.Defaults.Template = c.TemplateThreshold
	}
	if c.AIThreshold > 0 {
		rc.Defaults.AI = c.AIThreshold
	}
	if c.ElectricityShare > 0 {
		rc.ElectricityShare = c.ElectricityShare
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return reconcile.New(rc), nil
}

// initAI returns the configured AI extractor. The closer is non-nil for
// vendors holding a connection.
func initAI(ctx context.Context, c config.AIConfig) (aiextract.Extractor, io.Closer, error) {
	opts := []aiextract.Option{
		aiextract.WithRetry(resilience.FromSettings(c.MaxAttempts, c.InitialBackoffMs, 0)),
		aiextract.WithMaxTokens(c.MaxTokens),
		aiextract.WithTimeout(time.Duration(c.TimeoutSecs) * time.Second),
	}

	switch c.Provider {
	case "", "none":
		zap.L().Debug("no AI provider configured, extraction is template only")
		return aiextract.Static{}, nil, nil
	case "anthropic":
		client := anthropicpkg.NewClient(c.AnthropicKey)
		return aiextract.NewAnthropic(client, c.AnthropicModel, opts...), nil, nil
	case "gemini":
		g, err := aiextract.NewGemini(ctx, c.GeminiKey, c.GeminiModel, opts...)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "openai":
		return aiextract.NewOpenAI(c.OpenAIKey, c.OpenAIModel, c.OpenAIBaseURL, opts...), nil, nil
	default:
		return nil, nil, eris.Errorf("unknown ai provider %q", c.Provider)
	}
}
