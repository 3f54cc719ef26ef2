package attestation

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

func testPayload() ports.AttestationPayload {
	return ports.AttestationPayload{
		ContributionID: "c-1",
		Recipient:      "0x1111111111111111111111111111111111111111",
		Title:          "Mycelium mapping",
		Description:    "Transect survey",
		ImpactScore:    8,
		Tags:           []string{"fungi"},
		Timestamp:      time.Unix(1700000000, 0).UTC(),
	}
}

func TestEncodePayloadIsHexJSON(t *testing.T) {
	t.Parallel()

	encoded, err := EncodePayload(testPayload())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "0x"))

	raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "Mycelium mapping", decoded["title"])
	require.EqualValues(t, 1700000000, decoded["timestamp"])
	require.EqualValues(t, 8, decoded["impactScore"])
	require.Equal(t, "", decoded["postUrl"])
}

func TestEASClientAttest(t *testing.T) {
	t.Parallel()

	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/attest", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"uid":"0xabc"}`))
	}))
	defer server.Close()

	client := NewEASClient(Options{RelayerURL: server.URL, APIKey: "secret", SchemaUID: "0xschema", Chain: domain.ChainCelo})
	uid, err := client.Attest(context.Background(), testPayload(), "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	require.Equal(t, "0xabc", uid)
	require.Equal(t, "0xschema", got["schema"])
	require.EqualValues(t, 42220, got["chainId"])
	require.Equal(t, "0x2222222222222222222222222222222222222222", got["attester"])
}

func TestEASClientAttestFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relayer down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewEASClient(Options{RelayerURL: server.URL})
	_, err := client.Attest(context.Background(), testPayload(), "0x2222222222222222222222222222222222222222")
	require.ErrorContains(t, err, "relayer down")
}

func TestEASClientVerify(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]string `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Variables["id"] {
		case "0xlive":
			_, _ = w.Write([]byte(`{"data":{"attestation":{"id":"0xlive","revocationTime":0}}}`))
		case "0xrevoked":
			_, _ = w.Write([]byte(`{"data":{"attestation":{"id":"0xrevoked","revocationTime":1700000500}}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"attestation":null}}`))
		}
	}))
	defer server.Close()

	client := NewEASClient(Options{GraphQLURL: server.URL})
	ctx := context.Background()

	ok, err := client.Verify(ctx, "0xlive")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.Verify(ctx, "0xrevoked")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = client.Verify(ctx, "0xunknown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewEASClientPicksChainIndexer(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://arbitrum.easscan.org/graphql", NewEASClient(Options{Chain: domain.ChainArbitrum}).graphql)
	require.Equal(t, "https://base.easscan.org/graphql", NewEASClient(Options{}).graphql)
}

func TestLocalGateway(t *testing.T) {
	t.Parallel()

	gw := NewLocalGateway()
	ctx := context.Background()

	first, err := gw.Attest(ctx, testPayload(), "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	second, err := gw.Attest(ctx, testPayload(), "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Len(t, first, 66)

	ok, err := gw.Verify(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, gw.Revoke(first))
	ok, err = gw.Verify(ctx, first)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, gw.Revoke("0xnope"))
}
