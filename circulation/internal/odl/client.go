package odl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/pkg/circuitbreaker"
)

// StatusContentType is the media type of a License Status Document.
const StatusContentType = "application/vnd.readium.license.status.v1.0+json"

// ProblemTypeUnavailable is the problem-document type a distributor returns
// when a checkout fails because the license has no available copies.
const ProblemTypeUnavailable = "http://opds-spec.org/odl/error/checkout/unavailable"

// CheckoutParams carries the values expanded into a license's templated
// checkout link.
type CheckoutParams struct {
	PatronID        string
	Expires         time.Time
	NotificationURL string
}

// StatusClient talks to a distributor's license status endpoint.
type StatusClient interface {
	// Checkout begins a loan against the given license. Returns
	// errs.ErrNoAvailableCopies when the distributor reports the license
	// unavailable.
	Checkout(ctx context.Context, lic model.License, params CheckoutParams) (model.StatusDocument, error)
	// GetStatus fetches the current status document for a checkout.
	GetStatus(ctx context.Context, statusURL string) (model.StatusDocument, error)
	// Return hits the document's return link and reports the resulting
	// status.
	Return(ctx context.Context, returnURL string) (model.StatusDocument, error)
}

// Config holds the per-collection distributor connection settings.
type Config struct {
	Username string
	Password string
	Timeout  time.Duration
}

type client struct {
	httpClient *http.Client
	cb         circuitbreaker.CircuitBreaker
	cfg        Config
	log        *zap.Logger
}

// NewClient builds the ODL status client. All distributor calls go through
// a shared circuit breaker so a flapping license server trips fast instead
// of tying up request workers.
func NewClient(cfg Config, log *zap.Logger) *client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	const (
		cbWindow        = 20
		cbTimeout       = 30 * time.Second
		cbFailRate      = 0.5
		cbRecoveryCalls = 3
	)
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.New(cbWindow, cbTimeout, cbFailRate, cbRecoveryCalls),
		cfg:        cfg,
		log:        log.Named("odl"),
	}
}

func (c *client) Checkout(ctx context.Context, lic model.License, params CheckoutParams) (model.StatusDocument, error) {
	if lic.CheckoutURL == "" {
		return model.StatusDocument{}, errs.NewRemoteIntegrationError(lic.StatusURL, "license has no checkout link", nil)
	}

	checkoutURL := ExpandTemplate(lic.CheckoutURL, map[string]string{
		"id":               lic.Identifier,
		"checkout_id":      uuid.New().String(),
		"patron_id":        params.PatronID,
		"expires":          params.Expires.UTC().Format(time.RFC3339),
		"notification_url": params.NotificationURL,
	})

	return c.requestStatus(ctx, http.MethodPost, checkoutURL)
}

func (c *client) GetStatus(ctx context.Context, statusURL string) (model.StatusDocument, error) {
	return c.requestStatus(ctx, http.MethodGet, statusURL)
}

func (c *client) Return(ctx context.Context, returnURL string) (model.StatusDocument, error) {
	return c.requestStatus(ctx, http.MethodPut, returnURL)
}

// problemDocument is the RFC 7807 style error body distributors send on 4xx.
type problemDocument struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (c *client) requestStatus(ctx context.Context, method, url string) (model.StatusDocument, error) {
	var (
		statusCode int
		body       []byte
	)
	// Only transport-level failures go through the breaker. A 4xx problem
	// document is a business outcome and must not trip it.
	err := c.cb.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
		if err != nil {
			return errs.NewRemoteIntegrationError(url, "build request", err)
		}
		req.Header.Set("Accept", StatusContentType)
		if c.cfg.Username != "" {
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errs.NewRemoteIntegrationError(url, "request failed", err)
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return errs.NewRemoteIntegrationError(url, "read response", err)
		}
		if statusCode >= 500 {
			return errs.NewRemoteIntegrationError(url,
				fmt.Sprintf("unexpected status code %d", statusCode), nil)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return model.StatusDocument{}, errs.NewRemoteIntegrationError(url, "distributor circuit open", err)
		}
		return model.StatusDocument{}, err
	}
	return c.parseStatus(url, statusCode, body)
}

func (c *client) parseStatus(url string, statusCode int, body []byte) (model.StatusDocument, error) {
	if statusCode >= 400 {
		var problem problemDocument
		if jsonErr := json.Unmarshal(body, &problem); jsonErr == nil && problem.Type == ProblemTypeUnavailable {
			c.log.Warn("distributor reports no available copies",
				zap.String("url", url), zap.String("title", problem.Title))
			return model.StatusDocument{}, errs.ErrNoAvailableCopies
		}
		return model.StatusDocument{}, errs.NewRemoteIntegrationError(url,
			fmt.Sprintf("unexpected status code %d", statusCode), nil)
	}
	if statusCode < 200 || statusCode >= 300 {
		return model.StatusDocument{}, errs.NewRemoteIntegrationError(url,
			fmt.Sprintf("unexpected status code %d", statusCode), nil)
	}

	var doc model.StatusDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		c.log.Error("invalid loan status document", zap.String("url", url), zap.Error(err))
		return model.StatusDocument{}, errs.NewRemoteIntegrationError(url, "loan status document not valid", err)
	}
	if !model.KnownStatus(doc.Status) {
		return model.StatusDocument{}, errs.NewRemoteIntegrationError(url,
			fmt.Sprintf("unknown status value %q", doc.Status), nil)
	}
	return doc, nil
}
