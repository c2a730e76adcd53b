package domain

// TransitResult is one carrier answer for an (origin zip, destination zip)
// pair.
type TransitResult struct {
	BusinessTransitDays int
	SaturdayDelivery    bool
}
