package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/usecase"
)

type submitResponse struct {
	Contribution     domain.Contribution `json:"contribution"`
	AttestationError string              `json:"attestationError,omitempty"`
}

// SubmitContribution persists a contribution for the authenticated researcher.
// With ?wait=true the response is sent after the attestation attempt finishes.
func (s *Server) SubmitContribution(w http.ResponseWriter, r *http.Request) {
	var input domain.ContributionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	submission, err := s.cfg.Contributions.Submit(r.Context(), identityFrom(r.Context()), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, submitResponse{Contribution: submission.Contribution})
		return
	}

	resp := submitResponse{Contribution: submission.Contribution}
	if err := submission.Wait(); err != nil {
		resp.AttestationError = err.Error()
	}
	if current, err := s.cfg.Contributions.Get(r.Context(), submission.Contribution.ID); err == nil {
		resp.Contribution = current
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListContributions filters by ?status= and ?researcher=.
func (s *Server) ListContributions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		out []domain.Contribution
		err error
	)
	switch {
	case q.Get("researcher") != "":
		id, perr := strconv.ParseInt(q.Get("researcher"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid researcher id")
			return
		}
		out, err = s.cfg.Contributions.ByResearcher(r.Context(), id)
	case q.Get("status") != "":
		status := domain.ContributionStatus(q.Get("status"))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		out, err = s.cfg.Contributions.ByStatus(r.Context(), status)
	default:
		out, err = s.cfg.Contributions.List(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetContribution(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Contributions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) RetryAttestation(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Contributions.RetryAttestation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) VerifyAttestation(w http.ResponseWriter, r *http.Request) {
	ok, err := s.cfg.Contributions.VerifyAttestation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

// GetEligibility reports the caller's current weekly entitlement.
func (s *Server) GetEligibility(w http.ResponseWriter, r *http.Request) {
	who := identityFrom(r.Context())
	mine, err := s.cfg.Contributions.ByResearcher(r.Context(), who.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount := s.cfg.Payouts.ComputeEligibility(mine)
	writeJSON(w, http.StatusOK, map[string]any{
		"amount":   amount.StringFixed(usecase.AmountPlaces),
		"eligible": amount.IsPositive(),
	})
}

// CreatePayout creates the caller's weekly payout on the requested chain.
func (s *Server) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Chain string `json:"chain"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	chain := s.cfg.DefaultChain
	if req.Chain != "" {
		chain = domain.Chain(req.Chain)
	}

	payout, err := s.cfg.Payouts.CreateWeeklyPayout(r.Context(), identityFrom(r.Context()), chain)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

// ListPayouts filters by ?researcher=, ?status= or ?window=week.
func (s *Server) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		out []domain.Payout
		err error
	)
	switch {
	case q.Get("researcher") != "":
		id, perr := strconv.ParseInt(q.Get("researcher"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid researcher id")
			return
		}
		out, err = s.cfg.Payouts.ByResearcher(r.Context(), id)
	case q.Get("status") != "":
		status := domain.PayoutStatus(q.Get("status"))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		out, err = s.cfg.Payouts.ByStatus(r.Context(), status)
	case q.Get("window") == "week":
		out, err = s.cfg.Payouts.Weekly(r.Context())
	default:
		out, err = s.cfg.Payouts.List(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Payouts.ProcessPayout(r.Context(), chi.URLParam(r, "id"))
	s.writePayoutResult(w, r, p, err)
}

func (s *Server) RetryPayout(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Payouts.RetryFailedPayout(r.Context(), chi.URLParam(r, "id"))
	s.writePayoutResult(w, r, p, err)
}

// writePayoutResult returns the failed payout alongside a payment error.
func (s *Server) writePayoutResult(w http.ResponseWriter, r *http.Request, p domain.Payout, err error) {
	var payment *domain.PaymentError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.As(err, &payment):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "payout": p})
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) GetEcology(w http.ResponseWriter, r *http.Request) {
	eco, err := s.cfg.Metrics.Ecology(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ecology":     eco,
		"description": eco.SystemHealth.Description(),
	})
}

func (s *Server) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.cfg.Metrics.Dashboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Metrics.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) ListResearchers(w http.ResponseWriter, r *http.Request) {
	roster, err := s.cfg.Researchers.Roster(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) GetResearcher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid researcher id")
		return
	}
	profile, err := s.cfg.Researchers.Profile(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PublishReport sends the weekly digest immediately.
func (s *Server) PublishReport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Reports == nil {
		writeError(w, http.StatusServiceUnavailable, "reports are not configured")
		return
	}
	if err := s.cfg.Reports.Publish(r.Context(), s.cfg.Metrics.Now()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
