package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dialer-platform/internal/config"
)

// Carrier is the provider-agnostic interface for outbound call control.
// All calls are fire-and-confirm: the carrier acknowledges the request and
// progress arrives later via webhooks, never a synchronous wait.
//
// Rules:
// - No provider SDK calls outside this package.
// - Keep request/response types provider-agnostic.
type Carrier interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Dial originates a customer leg.
	Dial(ctx context.Context, req DialRequest) (DialResult, error)

	// JoinConference places an endpoint (agent device or number) into a
	// named room. The room is created by the carrier on first join.
	JoinConference(ctx context.Context, req JoinRequest) (JoinResult, error)
}

type DialRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	// StatusCallbackURL receives progress webhooks for this leg.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type DialResult struct {
	CarrierCallID string `json:"carrier_call_id"`
}

type JoinRequest struct {
	// Endpoint is the dial target for the joining leg: an agent SIP URI
	// ("sip:agent-7@pbx.example.com") or a PSTN number.
	Endpoint string `json:"endpoint"`
	Room     string `json:"room"`
	From     string `json:"from,omitempty"`
}

type JoinResult struct {
	CarrierLegID string `json:"carrier_leg_id"`
}

// HTTPCarrier talks to a Twilio-style REST API over plain HTTP.
type HTTPCarrier struct {
	cfg    config.CarrierConfig
	client *http.Client
}

func NewHTTPCarrier(cfg config.CarrierConfig) *HTTPCarrier {
	return &HTTPCarrier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCarrier) Name() string { return "http" }

func (c *HTTPCarrier) HealthCheck(ctx context.Context) error {
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" {
		return errors.New("telephony: carrier credentials not configured")
	}
	return nil
}

func (c *HTTPCarrier) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.To == "" || req.From == "" {
		return DialResult{}, errors.New("telephony: to and from required")
	}
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}
	sid, err := c.createCall(ctx, form)
	if err != nil {
		return DialResult{}, err
	}
	return DialResult{CarrierCallID: sid}, nil
}

func (c *HTTPCarrier) JoinConference(ctx context.Context, req JoinRequest) (JoinResult, error) {
	if req.Endpoint == "" || req.Room == "" {
		return JoinResult{}, errors.New("telephony: endpoint and room required")
	}
	inst, err := RenderInstruction(Instruction{Kind: InstructionConference, ConferenceRoom: req.Room})
	if err != nil {
		return JoinResult{}, err
	}
	form := url.Values{}
	form.Set("To", req.Endpoint)
	form.Set("From", req.From)
	form.Set("Twiml", inst)
	sid, err := c.createCall(ctx, form)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{CarrierLegID: sid}, nil
}

func (c *HTTPCarrier) createCall(ctx context.Context, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountSID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("telephony: carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("telephony: carrier returned %d", resp.StatusCode)
	}

	var body struct {
		Sid string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("telephony: carrier response decode failed: %w", err)
	}
	if body.Sid == "" {
		return "", errors.New("telephony: carrier response missing sid")
	}
	return body.Sid, nil
}

// MemoryCarrier is a fake carrier for tests. It records requests and can be
// told to fail joins to exercise the retryable routing-failure path.
type MemoryCarrier struct {
	mu sync.Mutex

	Dials []DialRequest
	Joins []JoinRequest

	FailJoins bool
	FailDials bool

	// JoinHook, when set, runs after a successful join before the result
	// is returned. Lets tests interleave work mid-bridge.
	JoinHook func(req JoinRequest)

	seq int
}

func NewMemoryCarrier() *MemoryCarrier { return &MemoryCarrier{} }

func (m *MemoryCarrier) Name() string { return "memory" }

func (m *MemoryCarrier) HealthCheck(ctx context.Context) error { return nil }

func (m *MemoryCarrier) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDials {
		return DialResult{}, errors.New("carrier unreachable")
	}
	m.Dials = append(m.Dials, req)
	m.seq++
	return DialResult{CarrierCallID: fmt.Sprintf("CA-mem-%d", m.seq)}, nil
}

func (m *MemoryCarrier) JoinConference(ctx context.Context, req JoinRequest) (JoinResult, error) {
	m.mu.Lock()
	if m.FailJoins {
		m.mu.Unlock()
		return JoinResult{}, errors.New("agent device unreachable")
	}
	m.Joins = append(m.Joins, req)
	m.seq++
	res := JoinResult{CarrierLegID: fmt.Sprintf("CA-mem-%d", m.seq)}
	hook := m.JoinHook
	m.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	return res, nil
}
