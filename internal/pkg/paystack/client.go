package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.paystack.co"

// ErrGatewayVerification marks events rejected because the gateway's
// verify-by-reference lookup failed or did not report success. Lookups fail
// closed: a timeout rejects the event rather than granting on unverified data.
var ErrGatewayVerification = errors.New("paystack: gateway verification failed")

// VerificationCache caches verify-by-reference responses so the redirect and
// webhook paths do not both hit the gateway for the same transaction. All
// cache failures are treated as misses.
type VerificationCache interface {
	Get(key string) (string, error)
	Set(key string, value string, ttl time.Duration) error
}

// VerifiedTransaction is the subset of the gateway's transaction/verify
// response the grant path relies on. The gateway's values are authoritative
// and override whatever the webhook payload claimed.
type VerifiedTransaction struct {
	Reference string
	Email     string
	// AmountMinor is in the gateway's minor units (kobo).
	AmountMinor int64
	PlanType    string
}

// Client calls the Paystack API with the account's secret key.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
	Cache      VerificationCache
}

// NewClientFromEnv builds a gateway client, or nil when no secret key is
// configured (authoritative re-verification is then skipped).
func NewClientFromEnv(cache VerificationCache) *Client {
	secretKey := strings.TrimSpace(env.GetEnv("PAYSTACK_SECRET_KEY", ""))
	if secretKey == "" {
		return nil
	}
	return &Client{
		SecretKey:  secretKey,
		APIBaseURL: strings.TrimSpace(env.GetEnv("PAYSTACK_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Cache: cache,
	}
}

const verifyCacheTTL = 15 * time.Minute

// VerifyTransaction performs the gateway's verify-by-reference lookup.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifiedTransaction, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrGatewayVerification)
	}

	cacheKey := "paystack:verify:" + ref
	if c.Cache != nil {
		if cached, err := c.Cache.Get(cacheKey); err == nil && cached != "" {
			var tx VerifiedTransaction
			if err := json.Unmarshal([]byte(cached), &tx); err == nil {
				return &tx, nil
			}
		}
	}

	base := strings.TrimRight(c.APIBaseURL, "/")
	reqURL := base + "/transaction/verify/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayVerification, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d", ErrGatewayVerification, resp.StatusCode)
	}

	var out struct {
		Status bool `json:"status"`
		Data   struct {
			Status    string `json:"status"`
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
			Customer  struct {
				Email string `json:"email"`
			} `json:"customer"`
			CustomerEmail string          `json:"customer_email"`
			Metadata      json.RawMessage `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrGatewayVerification, err)
	}
	if !out.Status || out.Data.Status != "success" {
		return nil, fmt.Errorf("%w: transaction status %q", ErrGatewayVerification, out.Data.Status)
	}

	email := strings.TrimSpace(out.Data.Customer.Email)
	if email == "" {
		email = strings.TrimSpace(out.Data.CustomerEmail)
	}

	tx := &VerifiedTransaction{
		Reference:   ref,
		Email:       email,
		AmountMinor: out.Data.Amount,
		PlanType:    planTypeFromMetadata(out.Data.Metadata),
	}

	if c.Cache != nil {
		if data, err := json.Marshal(tx); err == nil {
			if err := c.Cache.Set(cacheKey, string(data), verifyCacheTTL); err != nil {
				log.Debugf("[Paystack] verify cache write failed for %s: %v", ref, err)
			}
		}
	}
	return tx, nil
}
