package handlers

import (
	"net/http"
	"strings"

	"branch-distance-service/internal/api/dto"
	"branch-distance-service/internal/services"
)

type TransitHandler struct {
	Resolver *services.Resolver
}

// Transit handles GET /transit/{destinationZip}?branch=58,533 — the
// transit-only lookup. Branch numbers arrive comma-separated in a query
// parameter for easy consumption by other services.
func (h *TransitHandler) Transit(w http.ResponseWriter, r *http.Request) {
	destinationZip := r.PathValue("destinationZip")

	branchParam := r.URL.Query().Get("branch")
	if strings.TrimSpace(branchParam) == "" {
		writeError(w, r, http.StatusBadRequest, "please provide at least one branch number as a query parameter")
		return
	}
	branches := strings.Split(branchParam, ",")

	facts, err := h.Resolver.ResolveTransit(r.Context(), destinationZip, branches)
	if err != nil {
		respondResolveError(w, r, err)
		return
	}

	res := make(map[string]dto.TransitResponse, len(facts))
	for branch, f := range facts {
		res[branch] = dto.TransitResponse{
			BusinessTransitDays: f.BusinessTransitDays,
			SaturdayDelivery:    f.SaturdayDelivery,
		}
	}

	writeJSON(w, r, http.StatusOK, res)
}
