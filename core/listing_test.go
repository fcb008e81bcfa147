package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDraftListing(t *testing.T) {
	l, err := NewDraftListing("u-1", CreateListingInput{
		Title:       "  Ceramic mug ",
		Story:       "   ",
		PriceCents:  2500,
		ImageURL:    "https://img/x.jpg",
		Theme:       ThemeDark,
		ReturnsInfo: " 30 days ",
	}, t0)
	require.NoError(t, err)
	require.Equal(t, "Ceramic mug", l.Title)
	require.Nil(t, l.Story)
	require.Equal(t, "30 days", *l.ReturnsInfo)
	require.Equal(t, 1, l.Quantity)
	require.Equal(t, ListingDraft, l.Status)
	require.True(t, l.Available(), "drafts with stock are purchasable")
}

func TestCreateListingInputValidate(t *testing.T) {
	valid := CreateListingInput{Title: "Mug", PriceCents: 100, ImageURL: "https://img", Theme: ThemeMinimal}
	require.NoError(t, valid.Validate())

	neg := -1
	cases := map[string]struct {
		mutate func(*CreateListingInput)
		want   error
	}{
		"title":    {func(in *CreateListingInput) { in.Title = " " }, ErrTitleRequired},
		"price":    {func(in *CreateListingInput) { in.PriceCents = 99 }, ErrPriceTooLow},
		"image":    {func(in *CreateListingInput) { in.ImageURL = "" }, ErrImageRequired},
		"theme":    {func(in *CreateListingInput) { in.Theme = "neon" }, ErrInvalidTheme},
		"no theme": {func(in *CreateListingInput) { in.Theme = "" }, ErrInvalidTheme},
		"quantity": {func(in *CreateListingInput) { in.Quantity = &neg }, ErrInvalidQuantity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			require.ErrorIs(t, in.Validate(), tc.want)
		})
	}
}

func TestListingAvailability(t *testing.T) {
	l := Listing{Status: ListingActive, Quantity: 2, SoldCount: 2}
	require.False(t, l.Available())
	require.Zero(t, l.Remaining())

	l.SoldCount = 1
	require.True(t, l.Available())
	require.Equal(t, 1, l.Remaining())

	draft := Listing{Status: ListingDraft, Quantity: 1}
	require.True(t, draft.Available())
	draft.SoldCount = 1
	require.False(t, draft.Available())

	for _, status := range []string{ListingSoldOut, ListingArchived} {
		require.False(t, Listing{Status: status, Quantity: 5}.Available(), status)
	}
}

func TestListingPrice(t *testing.T) {
	require.Equal(t, "$1.00", ListingPrice(100))
	require.Equal(t, "$25.05", ListingPrice(2505))
}
