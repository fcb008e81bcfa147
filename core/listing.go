package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Listing themes control the public page styling.
const (
	ThemeMinimal = "minimal"
	ThemeDark    = "dark"
	ThemeWarm    = "warm"
)

// Listing statuses.
const (
	ListingDraft    = "draft"
	ListingActive   = "active"
	ListingSoldOut  = "sold_out"
	ListingArchived = "archived"
)

const MinPriceCents = 100

var listingThemes = []string{ThemeMinimal, ThemeDark, ThemeWarm}

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrPriceTooLow     = errors.New("price must be at least $1.00")
	ErrImageRequired   = errors.New("image is required")
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

// Listing is a product drop owned by a seller.
type Listing struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Story        *string   `json:"story"`
	PriceCents   int       `json:"price_cents"`
	Quantity     int       `json:"quantity"`
	SoldCount    int       `json:"sold_count"`
	ImageURL     string    `json:"image_url"`
	Theme        string    `json:"theme"`
	ShippingInfo *string   `json:"shipping_info"`
	ReturnsInfo  *string   `json:"returns_info"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Available reports whether the listing can still be bought. Drafts are live
// while the seller finishes payment setup.
func (l Listing) Available() bool {
	return (l.Status == ListingDraft || l.Status == ListingActive) && l.SoldCount < l.Quantity
}

// Remaining is the stock left; never negative.
func (l Listing) Remaining() int {
	if l.SoldCount >= l.Quantity {
		return 0
	}
	return l.Quantity - l.SoldCount
}

// CreateListingInput is the create-drop payload.
type CreateListingInput struct {
	Title        string `json:"title"`
	Story        string `json:"story"`
	PriceCents   int    `json:"price_cents"`
	Quantity     *int   `json:"quantity"`
	ImageURL     string `json:"image_url"`
	Theme        string `json:"theme"`
	ShippingInfo string `json:"shipping_info"`
	ReturnsInfo  string `json:"returns_info"`
}

// Validate checks the required fields, minimum price, theme and quantity.
func (in CreateListingInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if in.PriceCents < MinPriceCents {
		return ErrPriceTooLow
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return ErrImageRequired
	}
	if !slices.Contains(listingThemes, in.Theme) {
		return ErrInvalidTheme
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// NewDraftListing validates input and builds an unsaved draft owned by userID.
func NewDraftListing(userID string, in CreateListingInput, now time.Time) (Listing, error) {
	if err := in.Validate(); err != nil {
		return Listing{}, err
	}
	qty := 1
	if in.Quantity != nil && *in.Quantity > 0 {
		qty = *in.Quantity
	}

	return Listing{
		ID:           uuid.New(),
		UserID:       userID,
		Title:        strings.TrimSpace(in.Title),
		Story:        optionalText(in.Story),
		PriceCents:   in.PriceCents,
		Quantity:     qty,
		ImageURL:     strings.TrimSpace(in.ImageURL),
		Theme:        in.Theme,
		ShippingInfo: optionalText(in.ShippingInfo),
		ReturnsInfo:  optionalText(in.ReturnsInfo),
		Status:       ListingDraft,
		CreatedAt:    now.UTC(),
	}, nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ListingPrice formats cents as dollars.
func ListingPrice(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
