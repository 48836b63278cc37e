package models

// Requests for the HTTP endpoints. Defined in domain for consistency and reuse.

type SupplyForecastRequest struct {
	Material string `query:"material" default:"PET"`
	Region   string `query:"region" default:"Mumbai"`
	Days     int    `query:"days" default:"30" validate:"gte=1,lte=365"`
}

type MarketForecastRequest struct {
	Days int `query:"days" default:"90" validate:"gte=1,lte=365"`
}

type ListingsRequest struct {
	Material string `query:"material"`
	Region   string `query:"region"`
	Grade    string `query:"grade"`
}

type CreateListingRequest struct {
	RecyclerName  string   `json:"recycler_name" validate:"required"`
	MaterialType  string   `json:"material_type" validate:"required"`
	PurityGrade   string   `json:"purity_grade" validate:"required"`
	VolumeTons    *float64 `json:"volume_tons" validate:"required,gt=0"`
	AvailableDate string   `json:"available_date" validate:"omitempty,datetime=2006-01-02"`
	Region        string   `json:"region" validate:"required"`
	PricePerTon   *float64 `json:"price_per_ton" validate:"required,gt=0"`
}

// Input converts the request into the exchange input.
func (r *CreateListingRequest) Input() ListingInput {
	return ListingInput{
		RecyclerName:  r.RecyclerName,
		MaterialType:  r.MaterialType,
		PurityGrade:   r.PurityGrade,
		VolumeTons:    r.VolumeTons,
		AvailableDate: r.AvailableDate,
		Region:        r.Region,
		PricePerTon:   r.PricePerTon,
	}
}

type LockContractRequest struct {
	ListingID        string `json:"listing_id" validate:"required"`
	ManufacturerName string `json:"manufacturer_name" validate:"required"`
}
