package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

func NewOmiseClient(publicKey, secretKey string) (*omise.Client, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	c.SetDebug(false)
	return c, nil
}

// OmiseGateway issues refunds against existing charges and builds hosted
// checkouts from an offsite source plus a charge carrying a return URI.
type OmiseGateway struct {
	client     *omise.Client
	currency   string
	sourceType string
}

func NewOmiseGateway(client *omise.Client, currency, sourceType string) *OmiseGateway {
	return &OmiseGateway{client: client, currency: currency, sourceType: sourceType}
}

func (g *OmiseGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.ChargeID == "" || req.Amount <= 0 {
		return nil, ErrInvalidRefund
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := req.Metadata.ToMap()
	if req.Reason != "" {
		meta[keyReason] = req.Reason
	}

	refund := &omise.Refund{}
	op := &operations.CreateRefund{
		ChargeID: req.ChargeID,
		Amount:   req.Amount,
		Metadata: meta,
	}
	if err := g.client.Do(refund, op); err != nil {
		return nil, fmt.Errorf("omise create refund: %w", err)
	}

	return &Refund{ID: refund.ID, Amount: refund.Amount}, nil
}

func (g *OmiseGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Description == "" || req.Amount <= 0 {
		return nil, ErrInvalidCheckout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := &omise.Source{}
	if err := g.client.Do(src, &operations.CreateSource{
		Type:     g.sourceType,
		Amount:   req.Amount,
		Currency: g.currency,
	}); err != nil {
		return nil, fmt.Errorf("omise create source: %w", err)
	}

	meta := req.Metadata.ToMap()
	if req.CancelURL != "" {
		meta[keyCancelURL] = req.CancelURL
	}

	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.CreateCharge{
		Amount:      req.Amount,
		Currency:    g.currency,
		Source:      src.ID,
		Description: req.Description,
		ReturnURI:   req.SuccessURL,
		Metadata:    meta,
	}); err != nil {
		return nil, fmt.Errorf("omise create charge: %w", err)
	}

	if ch.AuthorizeURI == "" {
		return nil, fmt.Errorf("omise charge %s has no authorize uri", ch.ID)
	}
	return &Checkout{ID: ch.ID, URL: ch.AuthorizeURI}, nil
}

// ChargeEvent is the part of a provider webhook event the booking core acts on.
type ChargeEvent struct {
	EventID    string
	Key        string
	ChargeID   string
	Amount     int64
	Successful bool
	Metadata   map[string]interface{}
}

// FetchChargeEvent re-reads an event from Omise instead of trusting the
// webhook body, then decodes the charge it carries.
func (g *OmiseGateway) FetchChargeEvent(ctx context.Context, eventID string) (*ChargeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev := &omise.Event{}
	if err := g.client.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return nil, fmt.Errorf("omise retrieve event: %w", err)
	}

	out := &ChargeEvent{EventID: eventID, Key: ev.Key}
	if ev.Key != "charge.complete" {
		return out, nil
	}

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal charge: %w", err)
	}

	out.ChargeID = ch.ID
	out.Amount = ch.Amount
	out.Successful = string(ch.Status) == "successful"
	out.Metadata = ch.Metadata
	return out, nil
}
