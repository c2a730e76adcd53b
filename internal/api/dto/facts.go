package dto

// DistanceAndTransitResponse is the combined per-branch record. The
// distance field keeps its legacy JSON name ("distanceFromZip", meters);
// downstream consumers depend on it.
type DistanceAndTransitResponse struct {
	BranchNumber        string   `json:"branchNumber"`
	ZipCode             string   `json:"zipCode"`
	DistanceMeters      *float64 `json:"distanceFromZip"`
	BusinessTransitDays *int     `json:"businessTransitDays"`
	SaturdayDelivery    *bool    `json:"saturdayDelivery"`
}

type TransitResponse struct {
	BusinessTransitDays *int  `json:"businessTransitDays"`
	SaturdayDelivery    *bool `json:"saturdayDelivery"`
}
