package models

import "time"

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingLocked    ListingStatus = "locked"
)

// ContractConfirmed is the only contract status.
const ContractConfirmed = "confirmed"

// Listing is a recycler's offer to sell a quantity of material.
type Listing struct {
	ID            string        `json:"id"`
	RecyclerName  string        `json:"recycler_name"`
	MaterialType  string        `json:"material_type"`
	PurityGrade   string        `json:"purity_grade"`
	VolumeTons    float64       `json:"volume_tons"`
	AvailableDate string        `json:"available_date"`
	Region        string        `json:"region"`
	PricePerTon   float64       `json:"price_per_ton"`
	Status        ListingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Contract is the confirmed claim of one listing by a manufacturer.
type Contract struct {
	ID               string    `json:"id"`
	ListingID        string    `json:"listing_id"`
	ManufacturerName string    `json:"manufacturer_name"`
	RecyclerName     string    `json:"recycler_name"`
	MaterialType     string    `json:"material_type"`
	VolumeTons       float64   `json:"volume_tons"`
	PricePerTon      float64   `json:"price_per_ton"`
	TotalValue       float64   `json:"total_value"`
	ContractDate     time.Time `json:"contract_date"`
	Status           string    `json:"status"`
}

// ExchangeState is the unit persisted by a record store.
type ExchangeState struct {
	Listings  []Listing  `json:"listings"`
	Contracts []Contract `json:"contracts"`
}

// ListingInput carries the fields a recycler submits to create a listing.
// Pointers distinguish an absent numeric field from zero.
type ListingInput struct {
	RecyclerName  string
	MaterialType  string
	PurityGrade   string
	VolumeTons    *float64
	AvailableDate string
	Region        string
	PricePerTon   *float64
}

// ListingFilter narrows GetListings; empty fields match anything.
type ListingFilter struct {
	MaterialType string
	Region       string
	PurityGrade  string
}

// Matches reports whether l satisfies every non-empty filter field.
func (f ListingFilter) Matches(l Listing) bool {
	if f.MaterialType != "" && l.MaterialType != f.MaterialType {
		return false
	}
	if f.Region != "" && l.Region != f.Region {
		return false
	}
	if f.PurityGrade != "" && l.PurityGrade != f.PurityGrade {
		return false
	}
	return true
}

// MarketAnalytics summarises exchange activity.
type MarketAnalytics struct {
	TotalVolumeTraded float64    `json:"total_volume_traded"`
	TotalValueTraded  float64    `json:"total_value_traded"`
	ActiveListings    int        `json:"active_listings"`
	LatestContracts   []Contract `json:"latest_contracts"`
}

// Event types published by the exchange.
const (
	EventListingCreated = "listing.created"
	EventContractLocked = "contract.locked"
)

// ExchangeEvent is emitted after a successful exchange mutation.
type ExchangeEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Listing    *Listing  `json:"listing,omitempty"`
	Contract   *Contract `json:"contract,omitempty"`
}

// Key returns the partition key for the event (the listing id).
func (e ExchangeEvent) Key() string {
	switch {
	case e.Contract != nil:
		return e.Contract.ListingID
	case e.Listing != nil:
		return e.Listing.ID
	default:
		return ""
	}
}

// Classification is the opaque vision classifier result.
type Classification struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}
