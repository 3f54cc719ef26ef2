package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
	"CollectiveLedger/internal/usecase"
)

// ResearcherHeader carries the caller's identity-provider id.
const ResearcherHeader = "X-Researcher-ID"

type identityKey struct{}

// Config wires the use cases exposed over HTTP.
type Config struct {
	Contributions *usecase.ContributionService
	Payouts       *usecase.PayoutService
	Metrics       *usecase.MetricsService
	Researchers   *usecase.ResearcherService
	Reports       *usecase.ReportService
	Identities    ports.IdentitySource
	DefaultChain  domain.Chain
	Logger        *slog.Logger
}

// Server exposes the ledger as a JSON API.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router http.Handler
}

// New constructs the router.
func New(cfg Config) *Server {
	if cfg.DefaultChain == "" {
		cfg.DefaultChain = domain.ChainBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{cfg: cfg, logger: logger}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/contributions", s.ListContributions)
		api.Get("/contributions/{id}", s.GetContribution)
		api.Post("/contributions/{id}/attestation/retry", s.RetryAttestation)
		api.Get("/contributions/{id}/attestation/verify", s.VerifyAttestation)

		api.Get("/payouts", s.ListPayouts)
		api.Get("/payouts/{id}", s.GetPayout)
		api.Post("/payouts/{id}/process", s.ProcessPayout)
		api.Post("/payouts/{id}/retry", s.RetryPayout)

		api.Get("/ecology", s.GetEcology)
		api.Get("/dashboard", s.GetDashboard)
		api.Get("/snapshot", s.GetSnapshot)
		api.Get("/researchers", s.ListResearchers)
		api.Get("/researchers/{id}", s.GetResearcher)
		api.Post("/reports/weekly", s.PublishReport)

		api.Group(func(protected chi.Router) {
			protected.Use(s.authenticate)
			protected.Post("/contributions", s.SubmitContribution)
			protected.Get("/payouts/eligibility", s.GetEligibility)
			protected.Post("/payouts", s.CreatePayout)
		})
	})

	return r
}

// authenticate resolves the researcher named by ResearcherHeader.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ResearcherHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+ResearcherHeader)
			return
		}
		if s.cfg.Identities == nil {
			writeError(w, http.StatusUnauthorized, "identity source not configured")
			return
		}
		identity, err := s.cfg.Identities.Resolve(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown researcher")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	})
}

func identityFrom(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(identityKey{}).(domain.Identity)
	return identity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
