package paystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeaware/accessgate/app/models"
)

type memoryCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{m: make(map[string]string)}
}

func (c *memoryCache) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *memoryCache) Set(key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func newGatewayStub(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := &Client{
		SecretKey:  "sk_test_secret",
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	}
	return client, srv
}

func TestVerifyTransactionSuccess(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref_100", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"data": {
				"status": "success",
				"reference": "ref_100",
				"amount": 5000000,
				"customer": {"email": "user@example.com"},
				"metadata": {"plan_type": "daily"}
			}
		}`))
	})

	tx, err := client.VerifyTransaction(context.Background(), "ref_100")
	require.NoError(t, err)
	assert.Equal(t, "ref_100", tx.Reference)
	assert.Equal(t, "user@example.com", tx.Email)
	assert.Equal(t, int64(5000000), tx.AmountMinor)
	assert.Equal(t, models.PlanDaily, tx.PlanType)
}

func TestVerifyTransactionNonSuccessStatus(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": true, "data": {"status": "abandoned", "reference": "ref_101"}}`))
	})

	_, err := client.VerifyTransaction(context.Background(), "ref_101")
	assert.ErrorIs(t, err, ErrGatewayVerification)
}

func TestVerifyTransactionGatewayError(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.VerifyTransaction(context.Background(), "ref_102")
	assert.ErrorIs(t, err, ErrGatewayVerification)
}

func TestVerifyTransactionEmailFallback(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": true,
			"data": {"status": "success", "reference": "ref_103", "amount": 100, "customer_email": "fallback@example.com"}
		}`))
	})

	tx, err := client.VerifyTransaction(context.Background(), "ref_103")
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", tx.Email)
}

func TestVerifyTransactionUsesCache(t *testing.T) {
	calls := 0
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{
			"status": true,
			"data": {"status": "success", "reference": "ref_104", "amount": 100, "customer": {"email": "a@b.c"}}
		}`))
	})
	client.Cache = newMemoryCache()

	_, err := client.VerifyTransaction(context.Background(), "ref_104")
	require.NoError(t, err)
	_, err = client.VerifyTransaction(context.Background(), "ref_104")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestVerifyTransactionEmptyReference(t *testing.T) {
	client := &Client{SecretKey: "sk", APIBaseURL: "http://invalid", HTTPClient: http.DefaultClient}

	_, err := client.VerifyTransaction(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrGatewayVerification)
}

func TestNormalizeGatewayOverridesPayload(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": true,
			"data": {"status": "success", "reference": "ref_105", "amount": 5000000, "customer": {"email": "real@example.com"}}
		}`))
	})
	v := &Verifier{DailyPlanAmount: 50000, Client: client}

	// A forged body claims a different email and a tiny amount; the gateway's
	// values win and the event comes back verified despite the bad signature.
	body := []byte(`{"event": "charge.success", "data": {"reference": "ref_105", "amount": 100, "customer": {"email": "forged@example.com"}}}`)
	ev, err := v.Normalize(context.Background(), body, false)
	require.NoError(t, err)

	assert.Equal(t, "real@example.com", ev.Email)
	assert.Equal(t, int64(50000), ev.Amount)
	assert.Equal(t, models.PlanDaily, ev.Plan)
	assert.True(t, ev.Verified)
}

func TestNormalizeGatewayRejectionFailsClosed(t *testing.T) {
	client, _ := newGatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": false, "data": {"status": "failed"}}`))
	})
	v := &Verifier{DailyPlanAmount: 50000, Client: client}

	body := []byte(`{"event": "charge.success", "data": {"reference": "ref_106", "amount": 100, "customer": {"email": "a@b.c"}}}`)
	_, err := v.Normalize(context.Background(), body, true)
	assert.ErrorIs(t, err, ErrGatewayVerification)
}
