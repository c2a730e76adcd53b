package domain

// BranchFact is one branch's resolved distance/transit state for a
// destination zip code. Optional fields are nil until resolved, either
// from the store or from an external provider.
//
// RequiresSaving is true only for facts (or fact fields) computed during
// the current request; facts loaded from the store never need saving.
type BranchFact struct {
	BranchNumber        string
	DestinationZip      string
	DistanceMeters      *float64
	BusinessTransitDays *int
	SaturdayDelivery    *bool
	RequiresSaving      bool
}

func NewBranchFact(branchNumber, destinationZip string) *BranchFact {
	return &BranchFact{
		BranchNumber:   branchNumber,
		DestinationZip: destinationZip,
	}
}

// DistanceMissing reports whether the fact still needs a distance lookup.
func (f *BranchFact) DistanceMissing() bool {
	return f.DistanceMeters == nil
}

// TransitMissing reports whether the fact still needs a time-in-transit
// lookup. A stored value of zero is treated the same as no value: the
// legacy table used 0 as a placeholder, so it cannot be distinguished
// from "never computed".
func (f *BranchFact) TransitMissing() bool {
	return f.BusinessTransitDays == nil || *f.BusinessTransitDays == 0
}

func (f *BranchFact) SetDistance(meters float64) {
	f.DistanceMeters = &meters
	f.RequiresSaving = true
}

func (f *BranchFact) SetTransit(businessDays int, saturdayDelivery bool) {
	f.BusinessTransitDays = &businessDays
	f.SaturdayDelivery = &saturdayDelivery
	f.RequiresSaving = true
}
