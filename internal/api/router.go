package api

import (
	"net/http"

	"branch-distance-service/internal/api/handlers"
	"branch-distance-service/internal/services"
)

// NewRouter wires HTTP handlers with their dependencies and returns an
// http.Handler. Handlers stay unaware of concrete adapters; everything
// flows through the resolver.
func NewRouter(resolver *services.Resolver) http.Handler {
	mux := http.NewServeMux()

	factsHandler := &handlers.FactsHandler{Resolver: resolver}
	transitHandler := &handlers.TransitHandler{Resolver: resolver}

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /distance/zip/{destinationZip}", factsHandler.Distances)
	mux.HandleFunc("POST /distance/transit/{destinationZip}", factsHandler.DistanceAndTransit)
	mux.HandleFunc("GET /transit/{destinationZip}", transitHandler.Transit)

	return requestIDMiddleware(loggingMiddleware(mux))
}
