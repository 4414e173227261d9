package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/pipeline"
	"github.com/sells-group/bill-advisor/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{Mode: "serve", WithStore: true, WithAI: true})
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.AllowedOrigins, cfg.Server.MaxBodyBytes),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the HTTP endpoints over an appEnv.
type api struct {
	env     *appEnv
	maxBody int64
}

// newRouter builds the chi router. env.Store may be nil, in which case the
// persistence endpoints answer 503.
func newRouter(env *appEnv, origins []string, maxBody int64) http.Handler {
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	a := &api{env: env, maxBody: maxBody}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", a.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/bills/extract", a.handleExtract)
		r.Post("/bills/analyze", a.handleAnalyze)
		r.Post("/offers/rank", a.handleRank)
		r.Get("/offers", a.handleListOffers)
		r.Get("/providers/resolve", a.handleResolve)
		r.Get("/profiles", a.handleListProfiles)
		r.Get("/profiles/{id}", a.handleGetProfile)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeHTTPJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeHTTPJSON(w, status, map[string]string{"error": msg})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) needStore(w http.ResponseWriter) bool {
	if a.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return false
	}
	return true
}

// fail maps pipeline and store errors to HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrMissingCommodity), errors.Is(err, model.ErrInvalidOffer):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zap.L().Error("http handler failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if a.env.Store == nil {
		status["store"] = "disabled"
	}
	writeHTTPJSON(w, http.StatusOK, status)
}

func (a *api) handleExtract(w http.ResponseWriter, r *http.Request) {
	var in pipeline.Input
	if !a.decode(w, r, &in) {
		return
	}
	out, err := a.env.Analyzer.Extract(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusOK, out)
}

func (a *api) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !a.needStore(w) {
		return
	}
	var in pipeline.Input
	if !a.decode(w, r, &in) {
		return
	}
	out, err := a.env.Analyzer.Analyze(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusCreated, out)
}

type rankRequest struct {
	Profile   *model.BillProfile  `json:"profile"`
	ProfileID string              `json:"profile_id"`
	Offers    []model.EnergyOffer `json:"offers"`
}

func (a *api) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !a.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	var profile model.BillProfile
	switch {
	case req.Profile != nil:
		profile = *req.Profile
	case req.ProfileID != "":
		if !a.needStore(w) {
			return
		}
		rec, err := a.env.Store.GetProfile(ctx, req.ProfileID)
		if err != nil {
			fail(w, err)
			return
		}
		profile = rec.Profile
	default:
		writeError(w, http.StatusBadRequest, "profile or profile_id is required")
		return
	}

	var (
		res *pipeline.RankResult
		err error
	)
	if len(req.Offers) > 0 {
		res, err = a.env.Analyzer.RankOffers(ctx, profile, req.Offers)
	} else {
		if !a.needStore(w) {
			return
		}
		res, err = a.env.Analyzer.Rank(ctx, profile)
	}
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusOK, res)
}

func (a *api) handleListOffers(w http.ResponseWriter, r *http.Request) {
	if !a.needStore(w) {
		return
	}
	offers, err := a.env.Store.ListOffers(r.Context(), model.Commodity(r.URL.Query().Get("commodity")))
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusOK, offers)
}

func (a *api) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeHTTPJSON(w, http.StatusOK, a.env.Resolver.Resolve(name))
}

func (a *api) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if !a.needStore(w) {
		return
	}
	rec, err := a.env.Store.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusOK, rec)
}

func (a *api) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if !a.needStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.ProfileFilter{Kind: model.BillKind(q.Get("kind"))}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+key)
				return
			}
			*dst = n
		}
	}
	recs, err := a.env.Store.ListProfiles(r.Context(), filter)
	if err != nil {
		fail(w, err)
		return
	}
	writeHTTPJSON(w, http.StatusOK, recs)
}
