package inventory

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Log actions written to inventory_log.
const (
	ActionSale         = "Sale"
	ActionVoidRefund   = "Void Refund"
	ActionPOReceived   = "PO Received"
	ActionPurchase     = "Purchase"
	ActionQtyAdjusted  = "Qty Adjusted"
	ActionPriceChanged = "Price Changed"
	ActionEdited       = "Edited"
)

var (
	// ErrInvalidQuantity indicates zero or negative movement quantity.
	ErrInvalidQuantity = &shared.Error{Kind: shared.ErrValidation, Message: "inventory: quantity must be positive"}
	// ErrStockChanged indicates a concurrent writer moved the quantity first.
	ErrStockChanged = errors.New("inventory: stock changed concurrently")
)

// Product is one stock keeping unit.
type Product struct {
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand"`
	Description  string          `json:"description"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     int             `json:"quantity"`
	ReorderLevel int             `json:"reorder_level"`
	Dimensions   string          `json:"dimensions"`
	Weight       string          `json:"weight"`
	Color        string          `json:"color"`
	ImagePath    string          `json:"image_path"`
	Supplier     string          `json:"supplier"`
	DateAdded    string          `json:"date_added"`
	LastUpdated  string          `json:"last_updated"`
}

// LowStock reports whether the quantity is at or below the reorder level.
func (p Product) LowStock() bool {
	return p.Quantity <= p.ReorderLevel
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	SKU          string          `json:"sku" validate:"omitempty,max=64"`
	Barcode      string          `json:"barcode" validate:"omitempty,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand"`
	Description  string          `json:"description"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	ReorderLevel *int            `json:"reorder_level" validate:"omitempty,gte=0"`
	Dimensions   string          `json:"dimensions"`
	Weight       string          `json:"weight"`
	Color        string          `json:"color"`
	ImagePath    string          `json:"image_path"`
	Supplier     string          `json:"supplier"`
}

// ListFilter narrows ListProducts.
type ListFilter struct {
	Category string
	Search   string
	LowStock bool
}

// LogEntry is one append-only stock history row.
type LogEntry struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Action      string `json:"action"`
	Description string `json:"description"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
	QtyChange   int    `json:"qty_change"`
	Created     string `json:"created"`
}

// AdjustInput describes an explicit stock adjustment.
type AdjustInput struct {
	SKU    string `json:"sku" validate:"required"`
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=500"`
}

// PurchaseInput records stock received outside a purchase order.
type PurchaseInput struct {
	SKU           string          `json:"sku" validate:"required"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Supplier      string          `json:"supplier"`
	InvoiceNumber string          `json:"invoice_number"`
	Notes         string          `json:"notes"`
	Date          string          `json:"date"`
}

// Purchase is one row of purchase history.
type Purchase struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Date          string          `json:"date"`
	Supplier      string          `json:"supplier"`
	Quantity      int             `json:"quantity"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	InvoiceNumber string          `json:"invoice_number"`
	Notes         string          `json:"notes"`
	Created       string          `json:"created"`
}
