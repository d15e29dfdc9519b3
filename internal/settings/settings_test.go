package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(dbtest.Open(t), dbtest.Logger())
	ctx := context.Background()

	v, err := s.Get(ctx, KeyShopName, "Corner Shop")
	require.NoError(t, err)
	require.Equal(t, "Corner Shop", v)

	require.NoError(t, s.Set(ctx, KeyShopName, "Tillpoint Mart"))
	require.NoError(t, s.Set(ctx, KeyShopName, "Tillpoint Market"))
	v, err = s.Get(ctx, KeyShopName, "")
	require.NoError(t, err)
	require.Equal(t, "Tillpoint Market", v)

	require.NoError(t, s.SetMany(ctx, map[string]string{KeyTaxRate: "5", KeyReceiptFooter: "Thanks"}))
	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Equal(t, "5", all[KeyTaxRate])
	require.Equal(t, "Tillpoint Market", all[KeyShopName])
	require.Contains(t, all, KeyCurrencySymbol)

	require.ErrorIs(t, s.Set(ctx, " ", "x"), shared.ErrValidation)
}
