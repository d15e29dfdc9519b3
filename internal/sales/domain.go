package sales

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Sale status values. A sale is created Complete and may move to Voided once.
const (
	StatusComplete = "Complete"
	StatusVoided   = "Voided"
)

// receiptAttempts bounds regeneration of a colliding receipt number.
const receiptAttempts = 5

// Sale is a committed checkout with its line snapshots.
type Sale struct {
	ID             int64           `json:"id"`
	ReceiptNumber  string          `json:"receipt_number"`
	Timestamp      string          `json:"timestamp"`
	Date           string          `json:"date"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	PaymentMethod  string          `json:"payment_method"`
	Cashier        string          `json:"cashier"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerEmail  string          `json:"customer_email"`
	Status         string          `json:"status"`
	VoidedAt       string          `json:"voided_at,omitempty"`
	VoidedBy       string          `json:"voided_by,omitempty"`
	VoidReason     string          `json:"void_reason,omitempty"`
	Items          []SaleItem      `json:"items"`
}

// Voided reports whether the sale has been reversed.
func (s Sale) Voided() bool { return s.Status == StatusVoided }

// SaleItem is the priced snapshot of one sold line.
type SaleItem struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
}

// LineInput is one requested sale line.
type LineInput struct {
	SKU           string          `json:"sku" validate:"max=64"`
	Name          string          `json:"name" validate:"max=200"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=none percent fixed"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// CreateSaleRequest carries the checkout payload.
type CreateSaleRequest struct {
	Items          []LineInput     `json:"items" validate:"required,min=1,dive"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	PaymentMethod  string          `json:"payment_method" validate:"max=50"`
	Cashier        string          `json:"cashier" validate:"max=100"`
	CustomerName   string          `json:"customer_name" validate:"max=200"`
	CustomerPhone  string          `json:"customer_phone" validate:"max=32"`
	CustomerEmail  string          `json:"customer_email" validate:"omitempty,email"`
}

// VoidSaleRequest carries the reason for a void.
type VoidSaleRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListSalesRequest narrows ListSales. Dates are inclusive YYYY-MM-DD bounds.
type ListSalesRequest struct {
	From          string `validate:"omitempty,datetime=2006-01-02"`
	To            string `validate:"omitempty,datetime=2006-01-02"`
	Status        string `validate:"omitempty,oneof=Complete Voided"`
	CustomerPhone string
	Limit         int `validate:"gte=0,lte=1000"`
}

// HeldTransaction is a parked cart the cashier may recall later.
type HeldTransaction struct {
	HoldID string          `json:"hold_id"`
	Data   json.RawMessage `json:"data"`
	HeldAt string          `json:"held_at"`
}
