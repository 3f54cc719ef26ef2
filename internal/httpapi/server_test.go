package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/require"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/infrastructure/attestation"
	"CollectiveLedger/internal/infrastructure/identity"
	"CollectiveLedger/internal/infrastructure/payment"
	"CollectiveLedger/internal/infrastructure/storage"
	"CollectiveLedger/internal/usecase"
)

const danaID = "7"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	store := storage.NewMemoryStore()
	bus := events.NewBus()
	roster, err := identity.NewRoster([]domain.Identity{
		{ID: 7, Address: "0x1111111111111111111111111111111111111111", Handle: "dana"},
	})
	require.NoError(t, err)

	router := payment.NewRouter()
	for _, chain := range domain.SupportedChains {
		router.Register(chain, payment.NewSimulated())
	}

	pool := pond.NewPool(2)
	t.Cleanup(pool.StopAndWait)

	contributions := usecase.NewContributionService(usecase.ContributionDeps{
		Repository: store,
		Gateway:    attestation.NewLocalGateway(),
		Bus:        bus,
		Pool:       pool,
	})
	payouts := usecase.NewPayoutService(usecase.PayoutDeps{
		Payouts:       store,
		Contributions: store,
		Payments:      router,
		Authorizer:    router,
		Bus:           bus,
	})
	metrics := usecase.NewMetricsService(store, store, nil, usecase.DefaultRates(), nil)

	return New(Config{
		Contributions: contributions,
		Payouts:       payouts,
		Metrics:       metrics,
		Researchers:   usecase.NewResearcherService(roster, store, store, bus, nil, 0),
		Identities:    roster,
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, researcher string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if researcher != "" {
		req.Header.Set(ResearcherHeader, researcher)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func submit(t *testing.T, h http.Handler) domain.Contribution {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/contributions?wait=true", danaID, map[string]any{
		"title":       "Mycelium network map",
		"description": "Transect survey of the north slope",
		"tags":        []string{"fungi"},
		"impactScore": 6,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[submitResponse](t, rec)
	require.Empty(t, resp.AttestationError)
	return resp.Contribution
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRequiresResearcher(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/contributions", "", map[string]any{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/contributions", "404", map[string]any{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitValidation(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/v1/contributions", danaID, map[string]any{
		"title":       "x",
		"description": "y",
		"impactScore": 11,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAndPayFlow(t *testing.T) {
	h := newTestServer(t)

	contribution := submit(t, h)
	require.Equal(t, domain.ContributionVerified, contribution.Status)
	require.NotEmpty(t, contribution.AttestationID)

	rec := do(t, h, http.MethodGet, "/api/v1/contributions/"+contribution.ID+"/attestation/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[map[string]bool](t, rec)["valid"])

	rec = do(t, h, http.MethodGet, "/api/v1/payouts/eligibility", danaID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	eligibility := decode[map[string]any](t, rec)
	require.Equal(t, "0.0800", eligibility["amount"])
	require.Equal(t, true, eligibility["eligible"])

	rec = do(t, h, http.MethodPost, "/api/v1/payouts", danaID, map[string]string{"chain": "solana"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/payouts", danaID, map[string]string{"chain": "celo"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payout := decode[domain.Payout](t, rec)
	require.Equal(t, domain.PayoutPending, payout.Status)
	require.Equal(t, []string{contribution.ID}, payout.ContributionIDs)

	rec = do(t, h, http.MethodPost, "/api/v1/payouts/"+payout.ID+"/process", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[domain.Payout](t, rec)
	require.Equal(t, domain.PayoutCompleted, processed.Status)
	require.NotEmpty(t, processed.TxHash)

	rec = do(t, h, http.MethodGet, "/api/v1/contributions/"+contribution.ID, "", nil)
	require.Equal(t, domain.ContributionPaid, decode[domain.Contribution](t, rec).Status)

	rec = do(t, h, http.MethodPost, "/api/v1/payouts/"+payout.ID+"/process", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/payouts/"+payout.ID+"/retry", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/payouts", danaID, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/researchers/"+danaID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[domain.Researcher](t, rec)
	require.Equal(t, 1, profile.TotalContributions)
	require.Equal(t, "0.0800", profile.TotalEarned)

	rec = do(t, h, http.MethodGet, "/api/v1/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[domain.DashboardMetrics](t, rec)
	require.Equal(t, 1, dash.ChainDistribution[domain.ChainCelo])
	require.Equal(t, "200.00", dash.TotalValueFlow)
}

func TestListFilters(t *testing.T) {
	h := newTestServer(t)
	submit(t, h)

	rec := do(t, h, http.MethodGet, "/api/v1/contributions?status=verified", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]domain.Contribution](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/contributions?status=lost", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/payouts?window=week", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]domain.Payout](t, rec))
}

func TestNotFoundAndUnconfiguredReports(t *testing.T) {
	h := newTestServer(t)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/payouts/missing", "", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/contributions/missing", "", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/researchers/99", "", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/reports/weekly", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("title", "empty"), http.StatusBadRequest},
		{domain.ErrUnsupportedChain, http.StatusBadRequest},
		{domain.ErrUnauthorizedAccount, http.StatusForbidden},
		{domain.ErrPayoutInFlight, http.StatusConflict},
		{domain.ErrNoEligiblePayout, http.StatusUnprocessableEntity},
		{&domain.PaymentError{PayoutID: "p", Err: errors.New("relayer down")}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
