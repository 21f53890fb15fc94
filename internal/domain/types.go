package domain

import "time"

// CodeStatus is the allocation state of an access code.
type CodeStatus string

const (
	CodeAvailable CodeStatus = "available"
	CodeReserved  CodeStatus = "reserved"
	CodeActivated CodeStatus = "activated"
)

// Valid reports whether s is a known status.
func (s CodeStatus) Valid() bool {
	switch s {
	case CodeAvailable, CodeReserved, CodeActivated:
		return true
	}
	return false
}

// CanAdvanceTo reports whether the code may move from s to next.
// Status never moves backward, except through Release which is modeled
// separately because it undoes an uncommitted purchase.
func (s CodeStatus) CanAdvanceTo(next CodeStatus) bool {
	switch s {
	case CodeAvailable:
		return next == CodeReserved
	case CodeReserved:
		return next == CodeActivated
	}
	return false
}

// AccessCode is a pre-generated, printable identifier that a purchase
// claims and a physical scan later activates.
type AccessCode struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Status     CodeStatus `json:"status"`
	MemorialID string     `json:"memorial_id,omitempty"`
	OrderID    string     `json:"order_id,omitempty"`
	OwnerEmail string     `json:"owner_email,omitempty"`
	// Synthetic marks a degraded-mode code that was never printed.
	Synthetic   bool       `json:"synthetic"`
	Batch       string     `json:"batch,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReservedAt  *time.Time `json:"reserved_at,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// Binding is the ownership metadata attached to a code when it is claimed.
type Binding struct {
	MemorialID string
	OrderID    string
	OwnerEmail string
}

// Memorial is the digital memorial record sold alongside a tag.
type Memorial struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	AccessCode       string     `json:"access_code"`
	OwnerEmail       string     `json:"owner_email"`
	PaymentReference string     `json:"payment_reference"`
	IsActivated      bool       `json:"is_activated"`
	CreatedAt        time.Time  `json:"created_at"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderPaid, OrderCancelled},
	OrderPaid:       {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Address is a postal address captured from the payment session.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// LineItem is one purchased product, snapshotted at order creation.
// Amounts are minor currency units.
type LineItem struct {
	SKU             string            `json:"sku"`
	Name            string            `json:"name"`
	Quantity        int64             `json:"quantity"`
	UnitAmount      int64             `json:"unit_amount"`
	Personalization map[string]string `json:"personalization,omitempty"`
}

// Totals are the order amounts in minor currency units.
type Totals struct {
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// Order is one completed purchase, keyed by the gateway's payment reference.
// Items and Totals never change after creation.
type Order struct {
	ID               string      `json:"id"`
	OrderNumber      string      `json:"order_number"`
	PaymentReference string      `json:"external_payment_reference"`
	CustomerEmail    string      `json:"customer_email"`
	CustomerName     string      `json:"customer_name,omitempty"`
	Shipping         Address     `json:"shipping"`
	Items            []LineItem  `json:"items"`
	Totals           Totals      `json:"totals"`
	Status           OrderStatus `json:"status"`
	MemorialID       string      `json:"memorial_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Linked reports whether the order already points at its memorial.
func (o Order) Linked() bool {
	return o.MemorialID != ""
}

// Gateway session states that count as a completed payment.
const (
	SessionComplete = "complete"
	PaymentPaid     = "paid"
)

// PaymentDetails is what the payment gateway reports for a checkout session.
type PaymentDetails struct {
	Reference     string     `json:"reference"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	CustomerEmail string     `json:"customer_email"`
	CustomerName  string     `json:"customer_name,omitempty"`
	Shipping      Address    `json:"shipping"`
	Items         []LineItem `json:"items"`
	Totals        Totals     `json:"totals"`
	CartSessionID string     `json:"cart_session_id,omitempty"`
}

// Completed reports whether the gateway considers the payment settled.
func (p PaymentDetails) Completed() bool {
	return p.Status == SessionComplete && p.PaymentStatus == PaymentPaid
}

// Fulfillment is the Order, Memorial and AccessCode triad produced for one
// payment reference.
type Fulfillment struct {
	Order      Order      `json:"order"`
	Memorial   Memorial   `json:"memorial"`
	AccessCode AccessCode `json:"access_code"`
}

// Degraded reports whether the code is synthetic and needs manual follow-up.
func (f Fulfillment) Degraded() bool {
	return f.AccessCode.Synthetic
}
