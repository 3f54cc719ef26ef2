package httpapi

import (
	"errors"
	"net/http"

	"CollectiveLedger/internal/domain"
)

func statusFor(err error) int {
	var (
		validation  *domain.ValidationError
		payment     *domain.PaymentError
		attestation *domain.AttestationError
	)
	switch {
	case errors.As(err, &validation), errors.Is(err, domain.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorizedAccount):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPayoutInFlight),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPayoutNotRetryable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoEligiblePayout):
		return http.StatusUnprocessableEntity
	case errors.As(err, &payment), errors.As(err, &attestation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
