package attestation

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// SchemaDefinition is the field layout registered for contribution attestations.
const SchemaDefinition = "string title,string description,uint256 timestamp,string postUrl,uint8 impactScore,string[] tags"

// GraphQLEndpoints maps chain ids to the public EAS indexers.
var GraphQLEndpoints = map[int64]string{
	1:     "https://easscan.org/graphql",
	8453:  "https://base.easscan.org/graphql",
	42161: "https://arbitrum.easscan.org/graphql",
	42220: "https://celo.easscan.org/graphql",
}

// Options configures an EASClient.
type Options struct {
	RelayerURL string
	GraphQLURL string
	APIKey     string
	SchemaUID  string
	Chain      domain.Chain
	Timeout    time.Duration
}

// EASClient submits attestations through an HTTP relayer and verifies them
// against the EAS GraphQL indexer.
type EASClient struct {
	relayer string
	graphql string
	apiKey  string
	schema  string
	chainID int64
	http    *http.Client
}

var _ ports.AttestationGateway = (*EASClient)(nil)

// NewEASClient creates a reusable HTTP client. The GraphQL endpoint defaults to
// the indexer of the configured chain, falling back to Base.
func NewEASClient(opts Options) *EASClient {
	chainID := opts.Chain.ChainID()
	if chainID == 0 {
		chainID = domain.ChainBase.ChainID()
	}
	graphql := opts.GraphQLURL
	if graphql == "" {
		graphql = GraphQLEndpoints[chainID]
	}
	if graphql == "" {
		graphql = GraphQLEndpoints[domain.ChainBase.ChainID()]
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EASClient{
		relayer: strings.TrimSuffix(opts.RelayerURL, "/"),
		graphql: graphql,
		apiKey:  opts.APIKey,
		schema:  opts.SchemaUID,
		chainID: chainID,
		http:    &http.Client{Timeout: timeout},
	}
}

// EncodePayload renders the schema fields as 0x-prefixed hex of their JSON form.
func EncodePayload(payload ports.AttestationPayload) (string, error) {
	tags := payload.Tags
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Timestamp   int64    `json:"timestamp"`
		PostURL     string   `json:"postUrl"`
		ImpactScore int      `json:"impactScore"`
		Tags        []string `json:"tags"`
	}{
		Title:       payload.Title,
		Description: payload.Description,
		Timestamp:   payload.Timestamp.Unix(),
		PostURL:     payload.PostURL,
		ImpactScore: payload.ImpactScore,
		Tags:        tags,
	})
	if err != nil {
		return "", fmt.Errorf("marshal attestation data: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}

// Attest asks the relayer to create an attestation and returns its UID.
func (c *EASClient) Attest(ctx context.Context, payload ports.AttestationPayload, attester string) (string, error) {
	if c.relayer == "" {
		return "", fmt.Errorf("attestation relayer is not configured")
	}
	data, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}

	req := map[string]any{
		"schema":         c.schema,
		"chainId":        c.chainID,
		"recipient":      payload.Recipient,
		"attester":       attester,
		"data":           data,
		"contributionId": payload.ContributionID,
		"revocable":      true,
	}
	var resp struct {
		UID string `json:"uid"`
	}
	if err := c.post(ctx, c.relayer+"/attest", req, &resp); err != nil {
		return "", err
	}
	if resp.UID == "" {
		return "", fmt.Errorf("relayer returned empty attestation uid")
	}
	return resp.UID, nil
}

// Record is the subset of an EAS attestation the ledger reads back.
type Record struct {
	ID             string `json:"id"`
	Schema         string `json:"schemaId"`
	Attester       string `json:"attester"`
	Recipient      string `json:"recipient"`
	Data           string `json:"data"`
	Time           int64  `json:"time"`
	RevocationTime int64  `json:"revocationTime"`
}

const attestationQuery = `query Attestation($id: String!) {
  attestation(where: { id: $id }) { id schemaId attester recipient data time revocationTime }
}`

const recipientQuery = `query Attestations($schema: String!, $recipient: String!, $take: Int!) {
  attestations(where: { schemaId: { equals: $schema }, recipient: { equals: $recipient } }, take: $take, orderBy: [{ time: desc }]) {
    id schemaId attester recipient data time revocationTime
  }
}`

// Get fetches a single attestation; a nil record means the indexer does not know it.
func (c *EASClient) Get(ctx context.Context, attestationID string) (*Record, error) {
	var resp struct {
		Data struct {
			Attestation *Record `json:"attestation"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err := c.post(ctx, c.graphql, map[string]any{
		"query":     attestationQuery,
		"variables": map[string]any{"id": attestationID},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", resp.Errors[0].Message)
	}
	return resp.Data.Attestation, nil
}

// Verify reports whether the attestation exists and has not been revoked.
func (c *EASClient) Verify(ctx context.Context, attestationID string) (bool, error) {
	record, err := c.Get(ctx, attestationID)
	if err != nil {
		return false, err
	}
	return record != nil && record.RevocationTime == 0, nil
}

// ByRecipient lists the newest contribution attestations issued to recipient.
func (c *EASClient) ByRecipient(ctx context.Context, recipient string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var resp struct {
		Data struct {
			Attestations []Record `json:"attestations"`
		} `json:"data"`
	}
	err := c.post(ctx, c.graphql, map[string]any{
		"query": recipientQuery,
		"variables": map[string]any{
			"schema":    c.schema,
			"recipient": recipient,
			"take":      limit,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data.Attestations, nil
}

func (c *EASClient) post(ctx context.Context, endpoint string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
