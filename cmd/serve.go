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

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/monitoring"
	"github.com/sells-group/appraise-cli/internal/normalize"
	"github.com/sells-group/appraise-cli/internal/pipeline"
	"github.com/sells-group/appraise-cli/internal/provenance"
	"github.com/sells-group/appraise-cli/internal/resilience"
	"github.com/sells-group/appraise-cli/internal/store"
	"github.com/sells-group/appraise-cli/internal/valuation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the appraisal HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Orchestrator.Breakers())
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		router := buildRouter(&api{
			store:         env.Store,
			orch:          env.Orchestrator,
			valuer:        valuation.NewEngine(cfg.Valuation.Currency),
			provenance:    provenance.NewEngine(cfg.Provenance.GapYears),
			collector:     collector,
			lookbackHours: cfg.Monitoring.LookbackWindowHours,
		}, cfg.Server.AllowedOrigins)

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// api holds the handlers' dependencies.
type api struct {
	store         store.Store
	orch          *pipeline.Orchestrator
	valuer        *valuation.Engine
	provenance    *provenance.Engine
	collector     *monitoring.Collector
	lookbackHours int
}

func buildRouter(a *api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/breakers", a.handleBreakers)
	r.Post("/breakers/{name}/reset", a.handleResetBreaker)
	r.Get("/stats", a.handleStats)
	r.Post("/valuations", a.handleValuation)
	r.Post("/normalize", a.handleNormalize)
	r.Route("/items/{id}", func(r chi.Router) {
		r.Post("/process", a.handleProcess)
		r.Get("/provenance", a.handleProvenance)
	})
	r.Get("/workflows", a.handleListWorkflows)
	r.Get("/dlq", a.handleListDLQ)
	r.Route("/workflows/{id}", func(r chi.Router) {
		r.Get("/", a.handleGetWorkflow)
		r.Get("/events", a.handleWorkflowEvents)
	})
	return r
}

// requestLogger logs each request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type processRequest struct {
	Images []model.ImageRef `json:"images"`
}

// handleProcess runs the pipeline synchronously. A failed workflow still
// returns its record, with 422, or 503 when a service was unavailable.
func (a *api) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	out := a.orch.ExecuteChain(r.Context(), chi.URLParam(r, "id"), req.Images)

	status := http.StatusOK
	if out.Status == model.WorkflowFailed {
		status = http.StatusUnprocessableEntity
		if out.Degraded() {
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, out.Record())
}

func (a *api) handleValuation(w http.ResponseWriter, r *http.Request) {
	var in model.ValuationInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, a.valuer.Evaluate(in))
}

type normalizeRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes"`
	Overrides   map[string]string `json:"overrides"`
}

func (a *api) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now()
	detected := make(map[string]model.AttributeValue, len(req.Attributes))
	for k, v := range req.Attributes {
		detected[k] = model.NewAttribute(v, model.SourceVision, now)
	}
	overrides := make(map[string]model.AttributeValue, len(req.Overrides))
	for k, v := range req.Overrides {
		overrides[k] = model.NewAttribute(v, model.SourceUser, now)
	}
	writeJSON(w, http.StatusOK, normalize.Normalize(req.Title, req.Description, detected, overrides))
}

type provenanceResponse struct {
	model.ProvenanceAnalysis
	LedgerVerified *bool `json:"ledger_verified,omitempty"`
}

// handleProvenance analyzes the stored item. With ?verify=true the timeline is
// also checked against the latest ledger fingerprint.
func (a *api) handleProvenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := a.store.GetItem(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, err)
		return
	}

	resp := provenanceResponse{ProvenanceAnalysis: a.provenance.Analyze(item.ProvenanceSubject())}
	fp, err := provenance.Fingerprint(resp.Timeline)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fingerprint failed")
		return
	}
	resp.Fingerprint = fp

	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); verify {
		entries, err := a.store.GetLedger(ctx, item.ID)
		if err != nil {
			a.storeError(w, err)
			return
		}
		if len(entries) > 0 {
			ok := entries[len(entries)-1].Fingerprint == fp
			resp.LedgerVerified = &ok
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	recs, err := a.store.ListWorkflows(r.Context(), model.WorkflowFilter{
		ItemID: q.Get("item_id"),
		Status: model.WorkflowStatus(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		a.storeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.WorkflowRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := a.store.ListDLQ(r.Context(), resilience.DLQFilter{
		ErrorType: q.Get("error_type"),
		Limit:     limit,
	})
	if err != nil {
		a.storeError(w, err)
		return
	}
	if entries == nil {
		entries = []resilience.DLQEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) handleWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := a.store.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (a *api) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.orch.Breakers().Snapshots())
}

// handleResetBreaker closes a breaker by hand, for example once an upstream
// outage is known to be over.
func (a *api) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cb, ok := a.orch.Breakers().Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	cb.Reset()
	zap.L().Info("circuit breaker reset by operator", zap.String("breaker", name))
	writeJSON(w, http.StatusOK, cb.Snapshot())
}

// handleStats summarizes workflow health. ?hours= overrides the lookback window.
func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := a.lookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) storeError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("http: store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
