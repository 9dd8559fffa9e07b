package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeaware/accessgate/internal/pkg/ledger"
	"github.com/stakeaware/accessgate/internal/pkg/paystack"
)

const testWebhookSecret = "sk_test_secret"

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	admin []string
}

func (n *recordingNotifier) Send(chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordingNotifier) SendButton(chatID int64, text, label, buttonURL string) error {
	return n.Send(chatID, text)
}

func (n *recordingNotifier) NotifyAdmin(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, text)
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *ledger.Service) {
	t.Helper()

	store, err := ledger.NewDocumentStore(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	svc := ledger.NewService(store, ledger.Config{
		DailyPlanDuration:   30 * 24 * time.Hour,
		WeekendPlanDuration: 30 * 24 * time.Hour,
	})

	Setup(Deps{
		Service:           svc,
		Verifier:          &paystack.Verifier{WebhookSecret: testWebhookSecret, DailyPlanAmount: 50000},
		Notifier:          &recordingNotifier{},
		Sweep:             func() error { return nil },
		AccessBotUsername: "AccessBot",
		DailyGroupLink:    "https://t.me/+daily",
		WeekendGroupLink:  "https://t.me/+weekend",
	})

	app := fiber.New(fiber.Config{
		Views: html.New("../../views", ".html"),
	})
	app.Post("/webhook/paystack", HandlePaystackWebhook)
	app.Get("/paystack_redirect", HandlePaystackRedirect)
	app.Post("/link_telegram", HandleLinkTelegram)
	app.Get("/status", HandleStatus)
	app.Get("/admin/users", HandleAdminUsers)
	app.Post("/admin/sweep", HandleAdminSweep)
	return app, svc
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func doWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Paystack-Signature", signature)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func chargeBody(reference, email string) []byte {
	payload := map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"reference": reference,
			"amount":    5000000,
			"customer":  map[string]any{"email": email},
			"metadata":  map[string]any{"plan_type": "daily"},
		},
	}
	data, _ := json.Marshal(payload)
	return data
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	app, _ := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, out := doWebhook(t, app, body, "feedfacecafe")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", out["error"])

	status, _ = doWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestWebhookGrantsOnChargeSuccess(t *testing.T) {
	app, svc := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, out := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "user@example.com", out["email"])
	assert.Equal(t, "activated", out["action"])

	recs, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Active)
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	app, svc := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, _ := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	status, out := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["duplicate"])

	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, first[0].ExpiresAt.Equal(second[0].ExpiresAt))
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	app, _ := newTestApp(t)

	body := []byte(`{"event":"transfer.success","data":{"reference":"ref_002"}}`)
	status, out := doWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ignored", out["status"])
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	app, _ := newTestApp(t)

	body := []byte(`{not json`)
	status, out := doWebhook(t, app, body, signBody(body))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", out["error"])
}

func TestLinkTelegramFlow(t *testing.T) {
	app, _ := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, _ := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	linkBody := []byte(`{"chat_id": 4242, "reference": "ref_001"}`)
	req := httptest.NewRequest("POST", "/link_telegram", bytes.NewReader(linkBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "linked", out["status"])
	assert.Equal(t, "user@example.com", out["email"])

	// Status now resolves through the linked chat id.
	resp, err = app.Test(httptest.NewRequest("GET", "/status?chat_id=4242", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "user@example.com", out["email"])
	assert.Equal(t, true, out["active"])
}

func TestLinkTelegramLegacyFieldNames(t *testing.T) {
	app, _ := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, _ := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	linkBody := []byte(`{"telegram_id": 4242, "paystack_reference": "ref_001"}`)
	req := httptest.NewRequest("POST", "/link_telegram", bytes.NewReader(linkBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLinkTelegramUnknownReference(t *testing.T) {
	app, _ := newTestApp(t)

	linkBody := []byte(`{"chat_id": 4242, "reference": "ref_never_seen"}`)
	req := httptest.NewRequest("POST", "/link_telegram", bytes.NewReader(linkBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestLinkTelegramSupersededReference(t *testing.T) {
	app, _ := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, _ := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	// A renewal supersedes the first handshake reference.
	body = chargeBody("ref_002", "user@example.com")
	status, _ = doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	linkBody := []byte(`{"chat_id": 4242, "reference": "ref_001"}`)
	req := httptest.NewRequest("POST", "/link_telegram", bytes.NewReader(linkBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestLinkTelegramValidation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/link_telegram", bytes.NewReader([]byte(`{"chat_id": 0, "reference": ""}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatusRequiresChatID(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/status?chat_id=999", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminUsersSnapshot(t *testing.T) {
	app, _ := newTestApp(t)

	body := chargeBody("ref_001", "user@example.com")
	status, _ := doWebhook(t, app, body, signBody(body))
	require.Equal(t, fiber.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/users", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out, "user@example.com")
	assert.Equal(t, "daily", out["user@example.com"]["plan"])
	assert.Equal(t, "ref_001", out["user@example.com"]["payment_reference"])
	// Snapshot keys match the record's JSON field names.
	assert.Contains(t, out["user@example.com"], "last_reminder_sent_at")
	assert.Contains(t, out["user@example.com"], "expires_at")
}

func TestAdminSweepTrigger(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/admin/sweep", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRedirectWithoutReference(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/paystack_redirect", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRedirectWithoutGatewayClientRendersDeepLink(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/paystack_redirect?reference=ref_001", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "https://t.me/AccessBot?start=ref_001")
}
