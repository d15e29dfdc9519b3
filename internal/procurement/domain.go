package procurement

import (
	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft    POStatus = "draft"
	POStatusPartial  POStatus = "partial"
	POStatusReceived POStatus = "received"
)

// orderNumberAttempts bounds regeneration of a colliding order number.
const orderNumberAttempts = 5

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	InvoiceNumber string          `json:"invoice_number"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name"`
	OrderDate     string          `json:"order_date"`
	ExpectedDate  string          `json:"expected_date"`
	Status        POStatus        `json:"status"`
	Notes         string          `json:"notes"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ReceivedDate  string          `json:"received_date"`
	ReceivedBy    string          `json:"received_by"`
	ReceiveNotes  string          `json:"receive_notes"`
	Created       string          `json:"created"`
	LastUpdated   string          `json:"last_updated"`
	Items         []POLine        `json:"items"`
}

// FullyReceived reports whether every line has reached its ordered quantity.
func (po PurchaseOrder) FullyReceived() bool {
	for _, item := range po.Items {
		if item.ReceivedQty < item.Quantity {
			return false
		}
	}
	return true
}

// POLine models purchase order lines.
type POLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	ReceivedQty int             `json:"received_qty"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Outstanding returns the quantity still to be received.
func (l POLine) Outstanding() int {
	if l.ReceivedQty >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReceivedQty
}

// CreatePOInput carries a new purchase order.
type CreatePOInput struct {
	SupplierID    int64         `json:"supplier_id" validate:"required,gt=0"`
	InvoiceNumber string        `json:"invoice_number" validate:"max=100"`
	OrderDate     string        `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedDate  string        `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string        `json:"notes" validate:"max=1000"`
	Lines         []POLineInput `json:"items" validate:"required,min=1,dive"`
}

// POLineInput is one requested product line.
type POLineInput struct {
	SKU       string          `json:"sku" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

// ReceiveInput carries a batch of received quantities keyed by SKU.
type ReceiveInput struct {
	Lines         []ReceiveLine `json:"items" validate:"required,min=1,dive"`
	InvoiceNumber string        `json:"invoice_number" validate:"max=100"`
	Notes         string        `json:"notes" validate:"max=1000"`
}

// ReceiveLine proposes a received quantity for one SKU of the order.
type ReceiveLine struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// AppliedLine reports how much of a proposed quantity was taken into stock.
type AppliedLine struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
}

// ReceiveResult is the outcome of one receiving call.
type ReceiveResult struct {
	Order   PurchaseOrder `json:"order"`
	Applied []AppliedLine `json:"applied"`
}

// ListFilters narrows purchase order listings.
type ListFilters struct {
	Status     POStatus
	SupplierID int64
	Limit      int
	Offset     int
}
