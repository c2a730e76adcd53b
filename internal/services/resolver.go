package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/obs"
	"branch-distance-service/internal/ports"

	"golang.org/x/sync/errgroup"
)

// ErrNoBranches rejects a request carrying no usable branch numbers before
// any store or provider call is made.
var ErrNoBranches = errors.New("at least one branch number is required")

// Resolver answers distance and transit questions for a set of branches
// and one destination zip, cache-aside: stored facts first, provider
// fallback only for what is missing, write-back scheduled for anything
// newly computed.
//
// Provider failures never fail a request; the affected branches simply
// stay unresolved. Only invalid input and an unreachable store at the
// cache-check step surface as errors.
type Resolver struct {
	store    ports.FactStore
	origins  ports.OriginLookup
	distance ports.DistanceProvider
	transit  ports.TransitProvider
	saver    *WriteBack
}

func NewResolver(
	store ports.FactStore,
	origins ports.OriginLookup,
	distance ports.DistanceProvider,
	transit ports.TransitProvider,
	saver *WriteBack,
) *Resolver {
	return &Resolver{
		store:    store,
		origins:  origins,
		distance: distance,
		transit:  transit,
		saver:    saver,
	}
}

// ResolveDistances returns a fact per requested branch with the distance
// side resolved where possible. The result key set always equals the
// input branch set.
func (r *Resolver) ResolveDistances(
	ctx context.Context,
	destinationZip string,
	branchNumbers []string,
) (_ map[string]*domain.BranchFact, err error) {
	defer obs.Time(ctx, "resolver.ResolveDistances")(&err)

	branches, err := validateRequest(destinationZip, branchNumbers)
	if err != nil {
		return nil, err
	}

	facts, err := r.distancePipeline(ctx, destinationZip, branches)
	if err != nil {
		return nil, err
	}

	r.scheduleSave(ctx, facts)
	return facts, nil
}

// ResolveTransit returns a fact per requested branch with the transit side
// resolved where possible.
func (r *Resolver) ResolveTransit(
	ctx context.Context,
	destinationZip string,
	branchNumbers []string,
) (_ map[string]*domain.BranchFact, err error) {
	defer obs.Time(ctx, "resolver.ResolveTransit")(&err)

	branches, err := validateRequest(destinationZip, branchNumbers)
	if err != nil {
		return nil, err
	}

	facts, err := r.transitPipeline(ctx, destinationZip, branches)
	if err != nil {
		return nil, err
	}

	r.scheduleSave(ctx, facts)
	return facts, nil
}

// ResolveDistanceAndTransit runs the distance and transit pipelines
// concurrently and joins their results by branch number. A hard failure
// on one side (store unreachable at its cache check) still returns the
// other side's results; only both sides failing fails the request.
func (r *Resolver) ResolveDistanceAndTransit(
	ctx context.Context,
	destinationZip string,
	branchNumbers []string,
) (_ map[string]*domain.BranchFact, err error) {
	defer obs.Time(ctx, "resolver.ResolveDistanceAndTransit")(&err)

	branches, err := validateRequest(destinationZip, branchNumbers)
	if err != nil {
		return nil, err
	}

	var (
		distFacts, transFacts map[string]*domain.BranchFact
		distErr, transErr     error
	)

	var g errgroup.Group
	g.Go(func() error {
		distFacts, distErr = r.distancePipeline(ctx, destinationZip, branches)
		return nil
	})
	g.Go(func() error {
		transFacts, transErr = r.transitPipeline(ctx, destinationZip, branches)
		return nil
	})
	_ = g.Wait()

	if distErr != nil && transErr != nil {
		return nil, fmt.Errorf("resolve distance and transit: %w", errors.Join(distErr, transErr))
	}
	if distErr != nil {
		log.Printf("req_id=%s distance pipeline failed, returning transit only: %v", obs.RequestID(ctx), distErr)
	}
	if transErr != nil {
		log.Printf("req_id=%s transit pipeline failed, returning distance only: %v", obs.RequestID(ctx), transErr)
	}

	out := make(map[string]*domain.BranchFact, len(branches))
	for _, b := range branches {
		combined := domain.NewBranchFact(b, destinationZip)

		if f := distFacts[b]; f != nil {
			combined.DistanceMeters = f.DistanceMeters
			combined.RequiresSaving = f.RequiresSaving
		}
		if f := transFacts[b]; f != nil {
			combined.BusinessTransitDays = f.BusinessTransitDays
			combined.SaturdayDelivery = f.SaturdayDelivery
			combined.RequiresSaving = combined.RequiresSaving || f.RequiresSaving
		}

		out[b] = combined
	}

	r.scheduleSave(ctx, out)
	return out, nil
}

// distancePipeline checks the cache, then falls back to the mapping
// provider for distance-missing branches. A fallback failure downgrades
// the affected branches to still-missing; only the cache check itself can
// fail the pipeline.
func (r *Resolver) distancePipeline(
	ctx context.Context,
	destinationZip string,
	branches []string,
) (map[string]*domain.BranchFact, error) {
	facts, err := r.loadFacts(ctx, destinationZip, branches)
	if err != nil {
		return nil, fmt.Errorf("distance pipeline: %w", err)
	}

	if err := r.fillMissingDistances(ctx, destinationZip, facts); err != nil {
		log.Printf("req_id=%s distance fallback failed, affected branches stay missing: %v", obs.RequestID(ctx), err)
	}

	return facts, nil
}

func (r *Resolver) transitPipeline(
	ctx context.Context,
	destinationZip string,
	branches []string,
) (map[string]*domain.BranchFact, error) {
	facts, err := r.loadFacts(ctx, destinationZip, branches)
	if err != nil {
		return nil, fmt.Errorf("transit pipeline: %w", err)
	}

	if err := r.fillMissingTransit(ctx, destinationZip, facts); err != nil {
		log.Printf("req_id=%s transit fallback failed, affected branches stay missing: %v", obs.RequestID(ctx), err)
	}

	return facts, nil
}

// loadFacts is the cache-check step: one batched store read, then a fact
// per requested branch. Branches without a stored row keep empty fields
// and RequiresSaving=false (nothing was computed for them yet). A store
// failure propagates; an empty result must never masquerade as "no data".
func (r *Resolver) loadFacts(
	ctx context.Context,
	destinationZip string,
	branches []string,
) (map[string]*domain.BranchFact, error) {
	stored, err := r.store.GetFacts(ctx, destinationZip, branches)
	if err != nil {
		return nil, fmt.Errorf("check stored facts: %w", err)
	}

	facts := make(map[string]*domain.BranchFact, len(branches))
	for _, b := range branches {
		facts[b] = domain.NewBranchFact(b, destinationZip)
	}

	for _, row := range stored {
		f, ok := facts[row.BranchNumber]
		if !ok {
			continue
		}
		f.DistanceMeters = row.DistanceMeters
		f.BusinessTransitDays = row.BusinessTransitDays
		f.SaturdayDelivery = row.SaturdayDelivery
	}

	return facts, nil
}

// fillMissingDistances resolves origins for the distance-missing branches
// and asks the mapping provider for the gaps. Branches the provider
// cannot route stay missing without error; branches whose batch failed
// are logged as provider failures.
func (r *Resolver) fillMissingDistances(
	ctx context.Context,
	destinationZip string,
	facts map[string]*domain.BranchFact,
) error {
	missing := missingBranches(facts, (*domain.BranchFact).DistanceMissing)
	if len(missing) == 0 {
		return nil
	}
	log.Printf("req_id=%s branches missing distance: %v", obs.RequestID(ctx), missing)

	origins, err := r.origins.GetOrigins(ctx, missing)
	if err != nil {
		return fmt.Errorf("get origins: %w", err)
	}

	result, err := r.distance.GetDistances(ctx, destinationZip, origins)
	if err != nil {
		return fmt.Errorf("get distances: %w", err)
	}

	for branch, meters := range result.Resolved {
		if f, ok := facts[branch]; ok {
			f.SetDistance(meters)
		}
	}

	if len(result.Failed) > 0 {
		log.Printf("req_id=%s distance provider failed for branches %v, left missing", obs.RequestID(ctx), result.Failed)
	}

	return nil
}

// fillMissingTransit queries the carrier once per transit-missing branch,
// concurrently. Each task writes only its own branch's fact, so the fan
// out needs no locking. A branch without an origin zip is skipped, a
// no-answer reply leaves the branch missing, and a failed call is logged
// and absorbed.
func (r *Resolver) fillMissingTransit(
	ctx context.Context,
	destinationZip string,
	facts map[string]*domain.BranchFact,
) error {
	missing := missingBranches(facts, (*domain.BranchFact).TransitMissing)
	if len(missing) == 0 {
		return nil
	}
	log.Printf("req_id=%s branches missing transit: %v", obs.RequestID(ctx), missing)

	zips, err := r.origins.GetOriginZips(ctx, missing)
	if err != nil {
		return fmt.Errorf("get origin zips: %w", err)
	}

	var g errgroup.Group
	for _, branch := range missing {
		originZip := zips[branch]
		if originZip == "" {
			log.Printf("req_id=%s branch=%q has no origin zip, skipping transit lookup", obs.RequestID(ctx), branch)
			continue
		}

		fact := facts[branch]
		g.Go(func() error {
			result, err := r.transit.TimeInTransit(ctx, originZip, destinationZip)
			if err != nil {
				log.Printf("req_id=%s transit lookup branch=%q failed, left missing: %v", obs.RequestID(ctx), branch, err)
				return nil
			}
			if result == nil {
				return nil
			}

			fact.SetTransit(result.BusinessTransitDays, result.SaturdayDelivery)
			return nil
		})
	}
	_ = g.Wait()

	return nil
}

// scheduleSave hands newly computed facts to the write-back pipeline as
// value copies. The request handler returns immediately; persistence runs
// detached and mutates only its own copies.
func (r *Resolver) scheduleSave(ctx context.Context, facts map[string]*domain.BranchFact) {
	if r.saver == nil {
		return
	}

	toSave := make([]domain.BranchFact, 0)
	for _, f := range facts {
		if f.RequiresSaving {
			toSave = append(toSave, *f)
		}
	}

	if len(toSave) == 0 {
		return
	}

	log.Printf("req_id=%s scheduling write-back for %d facts", obs.RequestID(ctx), len(toSave))
	r.saver.Schedule(ctx, toSave)
}

func validateRequest(destinationZip string, branchNumbers []string) ([]string, error) {
	if strings.TrimSpace(destinationZip) == "" {
		return nil, errors.New("destination zip is required")
	}

	seen := map[string]struct{}{}
	branches := make([]string, 0, len(branchNumbers))
	for _, b := range branchNumbers {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		branches = append(branches, b)
	}

	if len(branches) == 0 {
		return nil, ErrNoBranches
	}

	return branches, nil
}

func missingBranches(facts map[string]*domain.BranchFact, missing func(*domain.BranchFact) bool) []string {
	out := make([]string, 0)
	for branch, f := range facts {
		if missing(f) {
			out = append(out, branch)
		}
	}
	return out
}
