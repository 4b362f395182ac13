package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appEscrow "github.com/peacelink/peacelink/internal/application/escrow"
	appWallet "github.com/peacelink/peacelink/internal/application/wallet"
	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/notify"
	"github.com/peacelink/peacelink/internal/domain/wallet"
	"github.com/peacelink/peacelink/internal/infrastructure/memory"
	"github.com/peacelink/peacelink/internal/infrastructure/metrics"
)

type recordingSender struct{ lastOTP string }

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	if msg.Template == notify.TemplateDeliveryOTP {
		r.lastOTP = msg.Params["otp"]
	}
	return nil
}

type fixedCodec struct{}

func (fixedCodec) Generate() (string, string, error) { return "313373", "h:313373", nil }
func (fixedCodec) Verify(hash, code string) bool     { return hash == "h:"+code }

type apiFixture struct {
	ts     *httptest.Server
	store  *memory.Store
	sender *recordingSender
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	platform := wallet.New(wallet.RolePlatform, "ops@peacelink")
	require.NoError(t, store.Wallets().Create(context.Background(), platform))

	registry := prometheus.NewRegistry()
	sender := &recordingSender{}
	escrowSvc := appEscrow.NewService(
		store.PeaceLinks(), store.Ledger(), store.Wallets(), store.Disputes(),
		sender, fixedCodec{}, fees.DefaultSchedule(), platform.ID,
		24*time.Hour, metrics.NewEscrow(registry), zerolog.Nop(),
	)
	walletSvc := appWallet.NewService(store.Wallets(), fees.DefaultSchedule(), platform.ID, zerolog.Nop())

	ts := httptest.NewServer(NewServer(escrowSvc, walletSvc, registry).Router())
	t.Cleanup(ts.Close)
	return &apiFixture{ts: ts, store: store, sender: sender}
}

func (f *apiFixture) do(t *testing.T, method, path, role string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (f *apiFixture) createWallet(t *testing.T, role string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/v1/wallets", "", map[string]string{
		"role": role, "contact": "+233200000000",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["walletId"].(string)
}

func TestActorAndErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	buyerID := f.createWallet(t, "buyer")
	merchantID := f.createWallet(t, "merchant")

	resp, body := f.do(t, http.MethodPost, "/v1/peacelinks", "", map[string]interface{}{
		"buyer_wallet_id":    buyerID,
		"merchant_wallet_id": merchantID,
		"item_amount":        100000,
		"delivery_amount":    10000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plID := body["peaceLinkId"].(string)
	assert.Equal(t, "pending_approval", body["state"])

	// Buyer has no funds: approval rejected with the mapped code.
	resp, body = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/approve", "buyer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["error"])

	// Wrong actor role.
	resp, body = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/approve", "merchant", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED_ACTOR", body["error"])

	// Missing role header.
	resp, _ = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/approve", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Undefined edge maps to a conflict.
	resp, body = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/verify-otp", "dsp", map[string]string{"code": "313373"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])

	// Unknown entity.
	resp, body = f.do(t, http.MethodGet, "/v1/peacelinks/00000000-0000-0000-0000-000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestHappyPathOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	buyer := wallet.New(wallet.RoleBuyer, "+233200000001")
	buyer.Balance = 1_000_000
	merchant := wallet.New(wallet.RoleMerchant, "+233200000002")
	dsp := wallet.New(wallet.RoleDSP, "+233200000003")
	for _, w := range []*wallet.Wallet{buyer, merchant, dsp} {
		require.NoError(t, f.store.Wallets().Create(ctx, w))
	}

	resp, body := f.do(t, http.MethodPost, "/v1/peacelinks", "", map[string]interface{}{
		"buyer_wallet_id":    buyer.ID.String(),
		"merchant_wallet_id": merchant.ID.String(),
		"item_amount":        100000,
		"delivery_amount":    10000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plID := body["peaceLinkId"].(string)

	resp, _ = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/approve", "buyer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/assign-dsp", "merchant",
		map[string]string{"dsp_wallet_id": dsp.ID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "313373", f.sender.lastOTP)

	resp, body = f.do(t, http.MethodPost, "/v1/peacelinks/"+plID+"/verify-otp", "dsp",
		map[string]string{"code": f.sender.lastOTP})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "delivered", body["state"])

	resp, body = f.do(t, http.MethodGet, "/v1/peacelinks/"+plID+"/transitions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["transitions"], 4)

	// Settled balances visible over the wallet API.
	resp, body = f.do(t, http.MethodGet, "/v1/wallets/"+merchant.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(99300), body["balance"])

	// Merchant withdraws; the cash-out fee is 150bps.
	resp, body = f.do(t, http.MethodPost, "/v1/wallets/"+merchant.ID.String()+"/cash-out", "",
		map[string]int64{"amount": 10000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(150), body["fee"])

	// Health endpoint.
	resp, _ = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
