package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// NativeDecimals is the precision of the native token on every supported chain.
const NativeDecimals = 18

// Relayer submits transfers to an HTTP payment relayer that signs and broadcasts them.
type Relayer struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.PaymentService = (*Relayer)(nil)

// NewRelayer creates a reusable HTTP client.
func NewRelayer(endpoint, apiKey string, timeout time.Duration) *Relayer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relayer{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// ToWei converts a native amount into its smallest unit.
func ToWei(amount decimal.Decimal) string {
	return amount.Shift(NativeDecimals).Truncate(0).BigInt().String()
}

// Send requests a native transfer and returns the transaction hash.
func (r *Relayer) Send(ctx context.Context, to string, amount decimal.Decimal, chain domain.Chain) (string, error) {
	if r.endpoint == "" {
		return "", fmt.Errorf("payment relayer is not configured")
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient %q", to)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}

	body, err := json.Marshal(map[string]any{
		"to":        common.HexToAddress(to).Hex(),
		"amountWei": ToWei(amount),
		"chain":     string(chain),
		"chainId":   chain.ChainID(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("relayer error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out struct {
		TxHash string `json:"txHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("relayer returned empty transaction hash")
	}
	return out.TxHash, nil
}
