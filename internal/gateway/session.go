package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/evertag/internal/domain"
)

// Session is the checkout session object the gateway returns and embeds in
// callback events.
type Session struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerDetails customerDetails   `json:"customer_details"`
	ShippingDetails shippingDetails   `json:"shipping_details"`
	AmountSubtotal  int64             `json:"amount_subtotal"`
	AmountTotal     int64             `json:"amount_total"`
	TotalDetails    totalDetails      `json:"total_details"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type shippingDetails struct {
	Name    string  `json:"name"`
	Address address `json:"address"`
}

type address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type totalDetails struct {
	AmountShipping int64 `json:"amount_shipping"`
	AmountTax      int64 `json:"amount_tax"`
}

// Metadata keys written by the storefront at checkout.
const (
	MetadataItems         = "items"
	MetadataCartSessionID = "cart_session_id"
)

// PaymentDetails converts the session into the domain view. The line-item
// snapshot travels as a JSON string in metadata because gateway metadata
// values are flat strings.
func (s Session) PaymentDetails() (domain.PaymentDetails, error) {
	details := domain.PaymentDetails{
		Reference:     s.ID,
		Status:        s.Status,
		PaymentStatus: s.PaymentStatus,
		CustomerEmail: s.CustomerDetails.Email,
		CustomerName:  s.CustomerDetails.Name,
		Shipping: domain.Address{
			Name:       s.ShippingDetails.Name,
			Line1:      s.ShippingDetails.Address.Line1,
			Line2:      s.ShippingDetails.Address.Line2,
			City:       s.ShippingDetails.Address.City,
			State:      s.ShippingDetails.Address.State,
			PostalCode: s.ShippingDetails.Address.PostalCode,
			Country:    s.ShippingDetails.Address.Country,
		},
		Totals: domain.Totals{
			Subtotal: s.AmountSubtotal,
			Shipping: s.TotalDetails.AmountShipping,
			Tax:      s.TotalDetails.AmountTax,
			Total:    s.AmountTotal,
			Currency: s.Currency,
		},
		CartSessionID: s.Metadata[MetadataCartSessionID],
	}

	if raw := s.Metadata[MetadataItems]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &details.Items); err != nil {
			return details, domain.NewInvalidArgumentError("session %s: metadata.items is not a line item list: %v", s.ID, err)
		}
	}
	for i, item := range details.Items {
		if item.Quantity < 1 {
			return details, domain.NewInvalidArgumentError("session %s: item %d has quantity %d", s.ID, i, item.Quantity)
		}
	}
	return details, nil
}

// EncodeItems renders line items for the items metadata key.
func EncodeItems(items []domain.LineItem) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(data), nil
}

// NewSession renders payment details as a gateway session, the inverse of
// PaymentDetails. Used to build callback payloads.
func NewSession(details domain.PaymentDetails) (Session, error) {
	s := Session{
		ID:              details.Reference,
		Status:          details.Status,
		PaymentStatus:   details.PaymentStatus,
		CustomerDetails: customerDetails{Email: details.CustomerEmail, Name: details.CustomerName},
		ShippingDetails: shippingDetails{
			Name: details.Shipping.Name,
			Address: address{
				Line1:      details.Shipping.Line1,
				Line2:      details.Shipping.Line2,
				City:       details.Shipping.City,
				State:      details.Shipping.State,
				PostalCode: details.Shipping.PostalCode,
				Country:    details.Shipping.Country,
			},
		},
		AmountSubtotal: details.Totals.Subtotal,
		AmountTotal:    details.Totals.Total,
		TotalDetails:   totalDetails{AmountShipping: details.Totals.Shipping, AmountTax: details.Totals.Tax},
		Currency:       details.Totals.Currency,
		Metadata:       map[string]string{},
	}
	if len(details.Items) > 0 {
		items, err := EncodeItems(details.Items)
		if err != nil {
			return Session{}, err
		}
		s.Metadata[MetadataItems] = items
	}
	if details.CartSessionID != "" {
		s.Metadata[MetadataCartSessionID] = details.CartSessionID
	}
	return s, nil
}

// NewEventPayload renders a callback event of the given type wrapping the
// session for details.
func NewEventPayload(id, eventType string, details domain.PaymentDetails) ([]byte, error) {
	session, err := NewSession(details)
	if err != nil {
		return nil, err
	}
	var event Event
	event.ID = id
	event.Type = eventType
	event.Data.Object = session
	return json.Marshal(event)
}
