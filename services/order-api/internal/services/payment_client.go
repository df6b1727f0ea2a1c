package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"go.uber.org/zap"
)

// PaymentDecision is the normalized outcome of a payment call.
type PaymentDecision struct {
	Approved bool
}

type PaymentClient interface {
	// Initiate asks the gateway to decide the payment. A non-nil error means the call itself
	// failed; a declined payment is a decision, not an error.
	Initiate(ctx context.Context, req views.PaymentRequest) (PaymentDecision, error)
}

type PaymentClientConfig struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
}

type PaymentClientImpl struct {
	PaymentClientConfig
}

func NewPaymentClient(cfg PaymentClientConfig) PaymentClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaymentClientImpl{PaymentClientConfig: cfg}
}

// paymentResponse accepts both decision conventions: a paymentStatus field holding a bool
// or "success"/"failed", and a boolean success field.
type paymentResponse struct {
	PaymentStatus json.RawMessage `json:"paymentStatus"`
	Success       *bool           `json:"success"`
}

func (p *PaymentClientImpl) Initiate(ctx context.Context, body views.PaymentRequest) (PaymentDecision, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return PaymentDecision{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return PaymentDecision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return PaymentDecision{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentDecision{}, fmt.Errorf("reading payment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return PaymentDecision{}, fmt.Errorf("payment gateway returned %d: %w", resp.StatusCode, pkg.ErrUnexpectedStatus)
	}

	var decoded paymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PaymentDecision{}, fmt.Errorf("decoding payment response: %w", err)
	}
	return normalizeDecision(decoded), nil
}

func normalizeDecision(r paymentResponse) PaymentDecision {
	if len(r.PaymentStatus) > 0 && string(r.PaymentStatus) != "null" {
		var approved bool
		if err := json.Unmarshal(r.PaymentStatus, &approved); err == nil {
			return PaymentDecision{Approved: approved}
		}
		var status string
		if err := json.Unmarshal(r.PaymentStatus, &status); err == nil {
			return PaymentDecision{Approved: strings.EqualFold(status, string(pkg.TransactionStatusSuccess))}
		}
		return PaymentDecision{}
	}
	return PaymentDecision{Approved: r.Success != nil && *r.Success}
}
