package domain

// OriginLocation is a branch's physical location as stored in the
// distribution center table. Either the coordinate pair or the address
// tuple is used to describe the origin to the mapping provider; when both
// are present, coordinates win (cheaper and more precise for the provider).
type OriginLocation struct {
	BranchNumber string
	Latitude     *float64
	Longitude    *float64
	Address1     string
	City         string
	State        string
	Zip          string
}

func (o OriginLocation) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}
