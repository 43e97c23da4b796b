package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Property types recognized by the CRM and its portal feeds.
const (
	PropertyTypeApartment  = "apartment"
	PropertyTypeHouse      = "house"
	PropertyTypeStudio     = "studio"
	PropertyTypeLoft       = "loft"
	PropertyTypeDuplex     = "duplex"
	PropertyTypeTriplex    = "triplex"
	PropertyTypeLand       = "land"
	PropertyTypeCommercial = "commercial"
	PropertyTypeOffice     = "office"
	PropertyTypeGarage     = "garage"
	PropertyTypeParking    = "parking"
	PropertyTypeBuilding   = "building"
	PropertyTypeCastle     = "castle"
	PropertyTypeOther      = "other"
)

// Listing statuses. Publication happens on the first transition to
// "available"; feeds only carry published, available listings.
const (
	PropertyStatusDraft      = "draft"
	PropertyStatusAvailable  = "available"
	PropertyStatusUnderOffer = "under_offer"
	PropertyStatusReserved   = "reserved"
	PropertyStatusSold       = "sold"
	PropertyStatusRented     = "rented"
	PropertyStatusWithdrawn  = "withdrawn"
	PropertyStatusArchived   = "archived"
)

// PropertyRepository defines the interface for managing property listings.
type PropertyRepository interface {
	// InsertProperty saves a new property. The reference must be unique
	// within the agency.
	InsertProperty(property *Property) error
	// GetProperty retrieves a property by ID.
	GetProperty(id uuid.UUID) (*Property, error)
	// GetPropertyByReference retrieves a property by agency and reference.
	GetPropertyByReference(agencyID uuid.UUID, reference string) (*Property, error)
	// GetProperties retrieves properties filtered by agency and status.
	// A nil agency or empty status means no filter on that column.
	GetProperties(agencyID *uuid.UUID, status string) ([]*Property, error)
	// GetPublishedProperties retrieves available, published listings for
	// matching and feeds.
	GetPublishedProperties(agencyID *uuid.UUID) ([]*Property, error)
	// UpdateProperty updates a property's details and status. The first
	// transition to "available" stamps PublishedAt.
	UpdateProperty(property *Property) error
	// IncrementViewCount adds one to the listing's view counter.
	IncrementViewCount(id uuid.UUID) error
	// IncrementInquiryCount adds one to the listing's inquiry counter.
	IncrementInquiryCount(id uuid.UUID) error
	// AttachMedia records an uploaded media file for the property.
	AttachMedia(media *PropertyMedia) error
	// GetMedia retrieves the media attached to a property, in position order.
	GetMedia(propertyID uuid.UUID) ([]*PropertyMedia, error)
	// DeleteMedia removes a media record.
	DeleteMedia(id uuid.UUID) error
}

// Property represents a real-estate listing managed by an agency.
type Property struct {
	ID           uuid.UUID       // Unique identifier for the listing.
	AgencyID     uuid.UUID       // Owning agency.
	AgentID      *uuid.UUID      // Agent in charge of the listing.
	Reference    string          // Agency-scoped reference (e.g. "APA-2026-4F9A2C").
	Title        string
	Description  string
	Type         string          // One of the PropertyType* constants.
	Status       string          // One of the PropertyStatus* constants.
	Price        decimal.Decimal // Asking price or monthly rent, in euros.
	Surface      float64         // Living surface in square meters.
	Rooms        int
	Bedrooms     int
	Bathrooms    int
	Floor        *int            // Floor number, nil for houses and land.
	YearBuilt    *int
	EnergyRating string          // DPE rating, "A" through "G", empty when not rated.
	Features     []string        // Amenities (e.g. "balcony", "parking", "elevator").
	Address      string
	City         string
	PostalCode   string
	Latitude     *float64        // Geocoded coordinates, nil until geocoding ran.
	Longitude    *float64
	ViewCount    int             // Listing page views.
	InquiryCount int             // Inquiries received through the listing.
	PublishedAt  *time.Time      // Set on the first transition to "available".
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PricePerSqm returns the price divided by the surface, or zero when the
// surface is unknown.
func (p *Property) PricePerSqm() decimal.Decimal {
	if p.Surface <= 0 {
		return decimal.Zero
	}
	return p.Price.Div(decimal.NewFromFloat(p.Surface)).Round(2)
}

// HasCoordinates reports whether the listing has been geocoded.
func (p *Property) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// PropertyMedia represents an uploaded photo, plan, or document attached to a
// listing. The content type is sniffed from the file contents at upload time.
type PropertyMedia struct {
	ID          uuid.UUID
	PropertyID  uuid.UUID
	FileName    string // Stored file name under the uploads directory.
	ContentType string // Sniffed MIME type.
	Size        int64  // File size in bytes.
	Position    int    // Display order, the first image is the cover.
	CreatedAt   time.Time
}
