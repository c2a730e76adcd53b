package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"

	"branch-distance-service/internal/api/dto"
	"branch-distance-service/internal/services"
)

// Meters-to-miles factor used by the legacy read queries; miles are always
// rounded up. Conversion lives here because it is presentation only — the
// domain and the store keep meters.
const metersToMiles = 0.0006213712

type FactsHandler struct {
	Resolver *services.Resolver
}

// Distances handles POST /distance/zip/{destinationZip} with a JSON array
// of branch numbers, returning branch -> distance in miles (null when the
// distance could not be resolved).
func (h *FactsHandler) Distances(w http.ResponseWriter, r *http.Request) {
	destinationZip := r.PathValue("destinationZip")

	branches, ok := readBranchBody(w, r)
	if !ok {
		return
	}

	facts, err := h.Resolver.ResolveDistances(r.Context(), destinationZip, branches)
	if err != nil {
		respondResolveError(w, r, err)
		return
	}

	res := make(map[string]*float64, len(facts))
	for branch, f := range facts {
		res[branch] = milesFromMeters(f.DistanceMeters)
	}

	writeJSON(w, r, http.StatusOK, res)
}

// DistanceAndTransit handles POST /distance/transit/{destinationZip},
// returning the combined per-branch record. Branches with null fields are
// "data unavailable", not errors.
func (h *FactsHandler) DistanceAndTransit(w http.ResponseWriter, r *http.Request) {
	destinationZip := r.PathValue("destinationZip")

	branches, ok := readBranchBody(w, r)
	if !ok {
		return
	}

	facts, err := h.Resolver.ResolveDistanceAndTransit(r.Context(), destinationZip, branches)
	if err != nil {
		respondResolveError(w, r, err)
		return
	}

	res := make(map[string]dto.DistanceAndTransitResponse, len(facts))
	for branch, f := range facts {
		res[branch] = dto.DistanceAndTransitResponse{
			BranchNumber:        f.BranchNumber,
			ZipCode:             f.DestinationZip,
			DistanceMeters:      f.DistanceMeters,
			BusinessTransitDays: f.BusinessTransitDays,
			SaturdayDelivery:    f.SaturdayDelivery,
		}
	}

	writeJSON(w, r, http.StatusOK, res)
}

func readBranchBody(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var branches []string

	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()

	if err := dec.Decode(&branches); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if len(branches) == 0 {
		writeError(w, r, http.StatusBadRequest, "please provide at least one branch number in the request body")
		return nil, false
	}

	return branches, true
}

func respondResolveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrNoBranches) {
		writeError(w, r, http.StatusBadRequest, "please provide at least one branch number")
		return
	}

	log.Printf("resolve failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}

func milesFromMeters(meters *float64) *float64 {
	if meters == nil {
		return nil
	}
	miles := math.Ceil(*meters * metersToMiles)
	return &miles
}
