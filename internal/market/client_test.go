package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agoradata/agora/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeSigner struct {
	signed [][]byte
}

func (f *fakeSigner) Sign(ctx context.Context, walletID uuid.UUID, payload []byte) (string, error) {
	f.signed = append(f.signed, payload)
	return "deadbeef", nil
}

func (f *fakeSigner) GetBalance(ctx context.Context, walletID uuid.UUID, asset string) (decimal.Decimal, error) {
	return decimal.NewFromInt(10), nil
}

func testBuyer() *domain.BuyerAgent {
	return &domain.BuyerAgent{ID: uuid.New(), WalletID: uuid.New()}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/datasets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("category"); got != "b2b" {
			t.Errorf("unexpected category %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"datasets": []map[string]any{
				{"id": uuid.NewString(), "name": "Contacts", "price_per_record": "0.01", "quality_score": 0.9},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSigner{}, zap.NewNop())
	datasets, err := c.Discover(context.Background(), domain.DiscoveryFilter{Category: "b2b"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(datasets) != 1 || datasets[0].Name != "Contacts" {
		t.Fatalf("unexpected datasets %+v", datasets)
	}
}

func TestSample(t *testing.T) {
	datasetID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if want := "/v1/datasets/" + datasetID.String() + "/sample"; r.URL.Path != want {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("unexpected limit %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"email": "a@example.com"}, {"email": "b@example.com"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSigner{}, zap.NewNop())
	records, err := c.Sample(context.Background(), datasetID, 5)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestPurchase_FullHandshake(t *testing.T) {
	dataset := &domain.Dataset{ID: uuid.New(), PricePerRecord: decimal.RequireFromString("0.01")}
	agent := testBuyer()
	challenge := domain.ChallengeBody{
		Scheme:    domain.SchemeX402,
		Amount:    "0.050000",
		Currency:  domain.CurrencyUSDC,
		Recipient: "0xseller",
		Network:   "base-sepolia",
		Nonce:     uuid.NewString(),
		Timestamp: 1700000000,
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get(AgentHeader); got != agent.ID.String() {
			t.Errorf("unexpected agent header %q", got)
		}
		if got := r.URL.Query().Get("quantity"); got != "5" {
			t.Errorf("unexpected quantity %q", got)
		}

		raw := r.Header.Get(domain.PaymentHeader)
		if raw == "" {
			// First request: no proof yet, answer with the challenge.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(challenge)
			return
		}

		var proof domain.SignedPayment
		if err := json.Unmarshal([]byte(raw), &proof); err != nil {
			t.Errorf("bad payment header: %v", err)
		}
		if proof.Nonce != challenge.Nonce || proof.Amount != challenge.Amount {
			t.Errorf("proof does not match challenge: %+v", proof)
		}
		if proof.Signature != "deadbeef" {
			t.Errorf("unexpected signature %q", proof.Signature)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"records":          []map[string]any{{"a": 1}, {"a": 2}, {"a": 3}, {"a": 4}, {"a": 5}},
			"transaction_hash": "0xsettled",
			"amount":           "0.050000",
		})
	}))
	defer srv.Close()

	signer := &fakeSigner{}
	c := NewClient(srv.URL, signer, zap.NewNop())

	result, err := c.Purchase(context.Background(), agent, dataset, 5)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
	if len(result.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(result.Records))
	}
	if result.AmountPaid.StringFixed(6) != "0.050000" {
		t.Fatalf("unexpected amount %s", result.AmountPaid)
	}
	if result.TxHash != "0xsettled" {
		t.Fatalf("unexpected tx hash %q", result.TxHash)
	}

	// The wallet signs the canonical challenge payload, not the raw body.
	if len(signer.signed) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.signed))
	}
	var payload map[string]any
	if err := json.Unmarshal(signer.signed[0], &payload); err != nil {
		t.Fatalf("signed payload not JSON: %v", err)
	}
	if payload["nonce"] != challenge.Nonce || payload["amount"] != challenge.Amount {
		t.Fatalf("unexpected signing payload %v", payload)
	}
}

func TestPurchase_RejectedProof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(domain.PaymentHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(domain.ChallengeBody{Scheme: domain.SchemeX402, Amount: "0.01", Nonce: "n"})
			return
		}
		http.Error(w, "payment verification failed", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSigner{}, zap.NewNop())
	dataset := &domain.Dataset{ID: uuid.New(), PricePerRecord: decimal.RequireFromString("0.01")}

	if _, err := c.Purchase(context.Background(), testBuyer(), dataset, 1); err == nil {
		t.Fatal("expected purchase to fail")
	}
}

func TestPurchase_NonChallengeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSigner{}, zap.NewNop())
	dataset := &domain.Dataset{ID: uuid.New(), PricePerRecord: decimal.RequireFromString("0.01")}

	if _, err := c.Purchase(context.Background(), testBuyer(), dataset, 1); err == nil {
		t.Fatal("expected an error on a non-402 first response")
	}
}
