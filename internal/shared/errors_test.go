package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	err := NotFound("sales: void", "receipt %s not found", "INV-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrConflict)
	require.Equal(t, "sales: void: receipt INV-1 not found", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	require.ErrorIs(t, wrapped, ErrNotFound)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrBackend, "db: exec", cause)
	require.ErrorIs(t, err, ErrBackend)
	require.ErrorIs(t, err, cause)
	require.Nil(t, Wrap(ErrBackend, "db: exec", nil))
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{Shortages: []Shortage{
		{SKU: "P1", Name: "Widget", Available: 2, Requested: 4},
		{SKU: "P9", Missing: true},
	}}
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "Widget: only 2 in stock, requested 4")
	require.Contains(t, err.Error(), "product P9 not found in inventory")

	var target *InsufficientStockError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &target))
	require.Len(t, target.Shortages, 2)
}

func TestCodes(t *testing.T) {
	now := time.Date(2025, 3, 9, 10, 4, 5, 0, time.UTC)
	receipt := ReceiptNumber(now)
	require.Regexp(t, `^INV-20250309-[0-9A-F]{6}$`, receipt)
	require.Regexp(t, `^PO-20250309-[0-9A-F]{4}$`, OrderNumber(now))
	require.Equal(t, "2025-03-09T10:04:05", Timestamp(now))
	require.Equal(t, "2025-03-09", Date(now))
	require.Len(t, ShortID(), 8)
}

func TestUniqueSixDigit(t *testing.T) {
	used := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		code, err := UniqueSixDigit(used)
		require.NoError(t, err)
		require.True(t, IsSixDigit(code), code)
	}
	require.Len(t, used, 200)
	require.False(t, IsSixDigit("12345"))
	require.False(t, IsSixDigit("12a456"))
	require.False(t, IsSixDigit("NLF-AB-12"))
}

func TestActorRoles(t *testing.T) {
	require.True(t, Actor{Role: RoleAdmin}.CanVoid())
	require.True(t, Actor{Role: RoleManager}.CanVoid())
	require.False(t, Actor{Role: RoleStaff}.CanVoid())
	require.Equal(t, "ana", Actor{Username: "ana"}.DisplayName())
}
