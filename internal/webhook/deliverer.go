// Package webhook is the outbound transport collaborator. It posts the
// privacy-minimized routing payload to the partner endpoint with a
// short-lived signed token; the routing core only sees deliver-then-report
// semantics.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"haven/internal/jwttoken"
	"haven/internal/partner"
	"haven/internal/routing"
	"haven/pkg/platform/circuit"
)

// tokenTTL bounds how long a delivery token stays valid. Long enough for
// retries at the HTTP layer, short enough that a leaked token is useless.
const tokenTTL = 5 * time.Minute

// Deliverer posts payloads to partner webhooks over HTTPS. Each partner gets
// its own circuit breaker: a down endpoint fails fast so the routing ledger
// records the attempt without burning the delivery timeout.
type Deliverer struct {
	client  *http.Client
	tokens  *jwttoken.Service
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

type Option func(*Deliverer)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Deliverer) { d.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Deliverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Deliverer) { d.client = client }
}

func New(tokens *jwttoken.Service, opts ...Option) (*Deliverer, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	d := &Deliverer{
		client:   &http.Client{},
		tokens:   tokens,
		timeout:  10 * time.Second,
		breakers: make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ackResponse is the partner's synchronous response body. A partner that
// opens a case immediately returns its reference here; otherwise it
// acknowledges later through the callback endpoint.
type ackResponse struct {
	PartnerRef string `json:"partner_ref"`
}

// Deliver posts the payload to the partner endpoint. Non-2xx responses and
// transport errors are delivery failures; the routing ledger records them.
func (d *Deliverer) Deliver(ctx context.Context, p partner.CrisisPartner, payload *routing.Payload) (string, error) {
	breaker := d.breakerFor(p.ID.String())
	if breaker.IsOpen() {
		return "", fmt.Errorf("partner %s circuit open, delivery skipped", p.ID.String())
	}

	ref, err := d.deliver(ctx, p, payload)
	if err != nil {
		if _, change := breaker.RecordFailure(); change.Opened && d.logger != nil {
			d.logger.WarnContext(ctx, "partner circuit opened",
				"partner_id", p.ID.String(),
			)
		}
		return "", err
	}
	if _, change := breaker.RecordSuccess(); change.Closed && d.logger != nil {
		d.logger.InfoContext(ctx, "partner circuit closed",
			"partner_id", p.ID.String(),
		)
	}
	return ref, nil
}

func (d *Deliverer) breakerFor(partnerID string) *circuit.Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[partnerID]
	if !ok {
		b = circuit.New(partnerID, circuit.WithFailureThreshold(5))
		d.breakers[partnerID] = b
	}
	return b
}

func (d *Deliverer) deliver(ctx context.Context, p partner.CrisisPartner, payload *routing.Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	token, err := d.tokens.GenerateDeliveryToken(p.ID.String(), p.APIKeyHash, tokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign delivery token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deliver to partner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount so the error is actionable without
		// trusting the partner to keep responses small.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("partner returned status %d: %s", resp.StatusCode, snippet)
	}

	var ack ackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ack); err != nil {
		// A 2xx with an unparseable body is still a successful handoff;
		// the partner will acknowledge via callback.
		if d.logger != nil {
			d.logger.DebugContext(ctx, "partner response not parseable, awaiting callback",
				"partner_id", p.ID.String(),
			)
		}
		return "", nil
	}
	return ack.PartnerRef, nil
}
