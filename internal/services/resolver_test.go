package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/ports"
)

type fakeFactStore struct {
	mu           sync.Mutex
	facts        map[string]domain.BranchFact
	getErr       error
	failFirstGet bool
	getCalls     int
	upsertErr    error
	upserts      []domain.BranchFact

	stageErr    error
	mergeErr    error
	truncateErr error
	stageCalls  int
	mergeCalls  int
	steps       []string
	staged      []domain.BranchFact
}

func newFakeFactStore() *fakeFactStore {
	return &fakeFactStore{facts: map[string]domain.BranchFact{}}
}

func factKey(branch, zip string) string { return branch + "|" + zip }

func (s *fakeFactStore) GetFacts(_ context.Context, destinationZip string, branchNumbers []string) ([]domain.BranchFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getCalls++
	if s.failFirstGet && s.getCalls == 1 {
		return nil, &ports.TransientError{Err: errors.New("store timeout")}
	}
	if s.getErr != nil {
		return nil, s.getErr
	}

	out := make([]domain.BranchFact, 0)
	for _, b := range branchNumbers {
		if f, ok := s.facts[factKey(b, destinationZip)]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeFactStore) UpsertFact(ctx context.Context, fact domain.BranchFact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserts = append(s.upserts, fact)
	if s.upsertErr != nil {
		return s.upsertErr
	}

	key := factKey(fact.BranchNumber, fact.DestinationZip)
	cur, ok := s.facts[key]
	if !ok {
		cur = domain.BranchFact{BranchNumber: fact.BranchNumber, DestinationZip: fact.DestinationZip}
	}
	if fact.DistanceMeters != nil {
		cur.DistanceMeters = fact.DistanceMeters
	}
	if fact.BusinessTransitDays != nil {
		cur.BusinessTransitDays = fact.BusinessTransitDays
	}
	if fact.SaturdayDelivery != nil {
		cur.SaturdayDelivery = fact.SaturdayDelivery
	}
	cur.RequiresSaving = false
	s.facts[key] = cur
	return nil
}

func (s *fakeFactStore) BulkStageInsert(_ context.Context, facts []domain.BranchFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stageCalls++
	s.steps = append(s.steps, "stage")
	if s.stageErr != nil {
		return s.stageErr
	}
	s.staged = append(s.staged, facts...)
	return nil
}

func (s *fakeFactStore) MergeStaged(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeCalls++
	s.steps = append(s.steps, "merge")
	if s.mergeErr != nil {
		return s.mergeErr
	}
	for _, f := range s.staged {
		key := factKey(f.BranchNumber, f.DestinationZip)
		s.facts[key] = f
	}
	return nil
}

func (s *fakeFactStore) TruncateStaged(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, "truncate")
	if s.truncateErr != nil {
		return s.truncateErr
	}
	s.staged = nil
	return nil
}

type fakeOriginLookup struct {
	origins map[string]domain.OriginLocation
	zips    map[string]string
	err     error
}

func (l *fakeOriginLookup) GetOrigins(_ context.Context, branchNumbers []string) ([]domain.OriginLocation, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make([]domain.OriginLocation, 0)
	for _, b := range branchNumbers {
		if o, ok := l.origins[b]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l *fakeOriginLookup) GetOriginZips(_ context.Context, branchNumbers []string) (map[string]string, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]string)
	for _, b := range branchNumbers {
		if z, ok := l.zips[b]; ok {
			out[b] = z
		}
	}
	return out, nil
}

type fakeDistanceProvider struct {
	mu     sync.Mutex
	result ports.MatrixResult
	err    error
	calls  [][]string
}

func (p *fakeDistanceProvider) GetDistances(_ context.Context, _ string, origins []domain.OriginLocation) (ports.MatrixResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	requested := make([]string, 0, len(origins))
	for _, o := range origins {
		requested = append(requested, o.BranchNumber)
	}
	p.calls = append(p.calls, requested)

	if p.err != nil {
		return ports.MatrixResult{}, p.err
	}

	out := ports.MatrixResult{Resolved: map[string]float64{}}
	for _, b := range requested {
		if m, ok := p.result.Resolved[b]; ok {
			out.Resolved[b] = m
		}
		for _, failed := range p.result.Failed {
			if failed == b {
				out.Failed = append(out.Failed, b)
			}
		}
	}
	return out, nil
}

type fakeTransitProvider struct {
	mu      sync.Mutex
	results map[string]*domain.TransitResult
	errs    map[string]error
	calls   []string
}

func (p *fakeTransitProvider) TimeInTransit(_ context.Context, originZip, _ string) (*domain.TransitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, originZip)
	if err, ok := p.errs[originZip]; ok {
		return nil, err
	}
	return p.results[originZip], nil
}

func (p *fakeTransitProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func coordOrigin(branch string, lat, lon float64) domain.OriginLocation {
	return domain.OriginLocation{BranchNumber: branch, Latitude: &lat, Longitude: &lon}
}

func newTestResolver(store *fakeFactStore, lookup *fakeOriginLookup, dist *fakeDistanceProvider, trans *fakeTransitProvider) (*Resolver, *WriteBack) {
	saver := NewWriteBack(store, nil, time.Millisecond)
	return NewResolver(store, lookup, dist, trans, saver), saver
}

func TestResolveDistancesFreshBranches(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{origins: map[string]domain.OriginLocation{
		"58":  coordOrigin("58", 33.7, -84.4),
		"533": coordOrigin("533", 30.3, -97.7),
	}}
	dist := &fakeDistanceProvider{result: ports.MatrixResult{Resolved: map[string]float64{
		"58":  30000,
		"533": 50000,
	}}}
	resolver, saver := newTestResolver(store, lookup, dist, &fakeTransitProvider{})

	facts, err := resolver.ResolveDistances(context.Background(), "30316", []string{"58", "533"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for branch, want := range map[string]float64{"58": 30000, "533": 50000} {
		f := facts[branch]
		if f == nil {
			t.Fatalf("branch %q missing from result", branch)
		}
		if f.DistanceMeters == nil || *f.DistanceMeters != want {
			t.Fatalf("branch %q distance = %v, want %v", branch, f.DistanceMeters, want)
		}
		if !f.RequiresSaving {
			t.Fatalf("branch %q should require saving", branch)
		}
	}

	saver.Drain()
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.upserts) != 2 {
		t.Fatalf("write-back upserts = %d, want 2", len(store.upserts))
	}
}

func TestResolveDistancesSkipsProviderForCachedBranches(t *testing.T) {
	store := newFakeFactStore()
	meters := 30000.0
	store.facts[factKey("58", "30316")] = domain.BranchFact{
		BranchNumber: "58", DestinationZip: "30316", DistanceMeters: &meters,
	}

	lookup := &fakeOriginLookup{origins: map[string]domain.OriginLocation{
		"58":  coordOrigin("58", 33.7, -84.4),
		"533": coordOrigin("533", 30.3, -97.7),
	}}
	dist := &fakeDistanceProvider{result: ports.MatrixResult{Resolved: map[string]float64{"533": 50000}}}
	resolver, _ := newTestResolver(store, lookup, dist, &fakeTransitProvider{})

	facts, err := resolver.ResolveDistances(context.Background(), "30316", []string{"58", "533"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(dist.calls))
	}
	if len(dist.calls[0]) != 1 || dist.calls[0][0] != "533" {
		t.Fatalf("provider was asked for %v, want only [533]", dist.calls[0])
	}

	if facts["58"].RequiresSaving {
		t.Fatal("cached branch must not require saving")
	}
	if facts["533"].DistanceMeters == nil {
		t.Fatal("missing branch should have been resolved by provider")
	}
}

func TestResolveDistancesNoRouteBranchStaysMissing(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{origins: map[string]domain.OriginLocation{
		"58":   coordOrigin("58", 33.7, -84.4),
		"9999": coordOrigin("9999", 0, 0),
	}}
	// Provider knows 58 but has no route for 9999.
	dist := &fakeDistanceProvider{result: ports.MatrixResult{Resolved: map[string]float64{"58": 30000}}}
	resolver, _ := newTestResolver(store, lookup, dist, &fakeTransitProvider{})

	facts, err := resolver.ResolveDistances(context.Background(), "30316", []string{"58", "9999"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if facts["9999"] == nil {
		t.Fatal("unroutable branch must still appear in the result")
	}
	if facts["9999"].DistanceMeters != nil {
		t.Fatal("unroutable branch should have no distance")
	}
	if facts["58"].DistanceMeters == nil {
		t.Fatal("routable branch should still resolve")
	}
}

func TestResolveDistancesKeySetPreservedWhenProviderFails(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{origins: map[string]domain.OriginLocation{
		"58":  coordOrigin("58", 33.7, -84.4),
		"533": coordOrigin("533", 30.3, -97.7),
	}}
	dist := &fakeDistanceProvider{err: errors.New("provider down")}
	resolver, _ := newTestResolver(store, lookup, dist, &fakeTransitProvider{})

	input := []string{"58", "533"}
	facts, err := resolver.ResolveDistances(context.Background(), "30316", input)
	if err != nil {
		t.Fatalf("provider failure must not fail the request: %v", err)
	}

	if len(facts) != len(input) {
		t.Fatalf("result has %d branches, want %d", len(facts), len(input))
	}
	for _, b := range input {
		f, ok := facts[b]
		if !ok {
			t.Fatalf("branch %q dropped from result", b)
		}
		if f.DistanceMeters != nil {
			t.Fatalf("branch %q should be unresolved", b)
		}
	}
}

func TestResolveRejectsEmptyBranchList(t *testing.T) {
	store := newFakeFactStore()
	resolver, _ := newTestResolver(store, &fakeOriginLookup{}, &fakeDistanceProvider{}, &fakeTransitProvider{})

	_, err := resolver.ResolveDistances(context.Background(), "30316", []string{" ", ""})
	if !errors.Is(err, ErrNoBranches) {
		t.Fatalf("err = %v, want ErrNoBranches", err)
	}
	if store.getCalls != 0 {
		t.Fatal("no store call may happen for invalid input")
	}
}

func TestResolveDistancesStoreFailurePropagates(t *testing.T) {
	store := newFakeFactStore()
	store.getErr = &ports.TransientError{Err: errors.New("store timeout")}
	resolver, _ := newTestResolver(store, &fakeOriginLookup{}, &fakeDistanceProvider{}, &fakeTransitProvider{})

	_, err := resolver.ResolveDistances(context.Background(), "30316", []string{"58"})
	if err == nil {
		t.Fatal("store failure at the cache check must fail the request")
	}
}

func TestResolveTransitPartialProviderFailure(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{zips: map[string]string{"1": "85009", "2": "30043", "3": "75201"}}
	days := 2
	trans := &fakeTransitProvider{
		results: map[string]*domain.TransitResult{
			"85009": {BusinessTransitDays: days, SaturdayDelivery: true},
			"75201": {BusinessTransitDays: 4},
		},
		errs: map[string]error{"30043": context.DeadlineExceeded},
	}
	resolver, _ := newTestResolver(store, lookup, &fakeDistanceProvider{}, trans)

	facts, err := resolver.ResolveTransit(context.Background(), "30316", []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("one slow branch must not fail the request: %v", err)
	}

	if facts["2"].BusinessTransitDays != nil {
		t.Fatal("timed-out branch should stay unresolved")
	}
	if facts["1"].BusinessTransitDays == nil || *facts["1"].BusinessTransitDays != days {
		t.Fatalf("branch 1 transit = %v, want %d", facts["1"].BusinessTransitDays, days)
	}
	if facts["1"].SaturdayDelivery == nil || !*facts["1"].SaturdayDelivery {
		t.Fatal("branch 1 should have saturday delivery set")
	}
	if facts["3"].BusinessTransitDays == nil {
		t.Fatal("branch 3 should have resolved")
	}
}

func TestResolveTransitTreatsStoredZeroAsMissing(t *testing.T) {
	store := newFakeFactStore()
	zero := 0
	store.facts[factKey("58", "30316")] = domain.BranchFact{
		BranchNumber: "58", DestinationZip: "30316", BusinessTransitDays: &zero,
	}

	lookup := &fakeOriginLookup{zips: map[string]string{"58": "30310"}}
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{
		"30310": {BusinessTransitDays: 1},
	}}
	resolver, _ := newTestResolver(store, lookup, &fakeDistanceProvider{}, trans)

	facts, err := resolver.ResolveTransit(context.Background(), "30316", []string{"58"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trans.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1 (zero counts as unresolved)", trans.callCount())
	}
	if facts["58"].BusinessTransitDays == nil || *facts["58"].BusinessTransitDays != 1 {
		t.Fatalf("transit = %v, want 1", facts["58"].BusinessTransitDays)
	}
}

func TestResolveTransitSkipsBranchWithoutOriginZip(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{zips: map[string]string{"1": "85009"}}
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{
		"85009": {BusinessTransitDays: 2},
	}}
	resolver, _ := newTestResolver(store, lookup, &fakeDistanceProvider{}, trans)

	facts, err := resolver.ResolveTransit(context.Background(), "30316", []string{"1", "no-zip"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trans.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1 (zipless branch skipped)", trans.callCount())
	}
	if facts["no-zip"].BusinessTransitDays != nil {
		t.Fatal("zipless branch should stay unresolved")
	}
}

func TestResolveTransitNoAnswerLeavesMissing(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{zips: map[string]string{"1": "85009"}}
	// Provider responds with an empty body: nil result, nil error.
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{}}
	resolver, _ := newTestResolver(store, lookup, &fakeDistanceProvider{}, trans)

	facts, err := resolver.ResolveTransit(context.Background(), "30316", []string{"1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if facts["1"].BusinessTransitDays != nil {
		t.Fatal("no-answer branch should stay unresolved")
	}
	if facts["1"].RequiresSaving {
		t.Fatal("nothing was computed; nothing to save")
	}
}

func TestResolveDistanceAndTransitMergesByBranch(t *testing.T) {
	store := newFakeFactStore()
	meters := 30000.0
	store.facts[factKey("58", "30316")] = domain.BranchFact{
		BranchNumber: "58", DestinationZip: "30316", DistanceMeters: &meters,
	}

	lookup := &fakeOriginLookup{
		origins: map[string]domain.OriginLocation{"58": coordOrigin("58", 33.7, -84.4)},
		zips:    map[string]string{"58": "30310"},
	}
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{
		"30310": {BusinessTransitDays: 3, SaturdayDelivery: false},
	}}
	resolver, saver := newTestResolver(store, lookup, &fakeDistanceProvider{}, trans)

	facts, err := resolver.ResolveDistanceAndTransit(context.Background(), "30316", []string{"58"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := facts["58"]
	if f.DistanceMeters == nil || *f.DistanceMeters != meters {
		t.Fatalf("distance = %v, want %v", f.DistanceMeters, meters)
	}
	if f.BusinessTransitDays == nil || *f.BusinessTransitDays != 3 {
		t.Fatalf("transit = %v, want 3", f.BusinessTransitDays)
	}
	// Distance came from the store, transit from the provider: the
	// combined record still needs saving.
	if !f.RequiresSaving {
		t.Fatal("combined record should OR the sub-results' RequiresSaving")
	}

	saver.Drain()
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.upserts) != 1 {
		t.Fatalf("write-back upserts = %d, want 1", len(store.upserts))
	}
}

func TestResolveDistanceAndTransitSurvivesOneSidedStoreFailure(t *testing.T) {
	store := newFakeFactStore()
	store.failFirstGet = true

	lookup := &fakeOriginLookup{
		origins: map[string]domain.OriginLocation{"58": coordOrigin("58", 33.7, -84.4)},
		zips:    map[string]string{"58": "30310"},
	}
	dist := &fakeDistanceProvider{result: ports.MatrixResult{Resolved: map[string]float64{"58": 30000}}}
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{
		"30310": {BusinessTransitDays: 3},
	}}
	resolver, _ := newTestResolver(store, lookup, dist, trans)

	facts, err := resolver.ResolveDistanceAndTransit(context.Background(), "30316", []string{"58"})
	if err != nil {
		t.Fatalf("one failed pipeline must not fail the request: %v", err)
	}
	if facts["58"] == nil {
		t.Fatal("branch missing from result")
	}

	resolved := 0
	if facts["58"].DistanceMeters != nil {
		resolved++
	}
	if facts["58"].BusinessTransitDays != nil {
		resolved++
	}
	if resolved != 1 {
		t.Fatalf("exactly one side should have resolved, got %d", resolved)
	}
}

func TestResolveDistanceAndTransitFailsWhenStoreUnavailable(t *testing.T) {
	store := newFakeFactStore()
	store.getErr = &ports.TransientError{Err: errors.New("store down")}
	resolver, _ := newTestResolver(store, &fakeOriginLookup{}, &fakeDistanceProvider{}, &fakeTransitProvider{})

	_, err := resolver.ResolveDistanceAndTransit(context.Background(), "30316", []string{"58"})
	if err == nil {
		t.Fatal("total store unavailability must fail the request")
	}
}

func TestResolveIdempotentOnceCached(t *testing.T) {
	store := newFakeFactStore()
	lookup := &fakeOriginLookup{
		origins: map[string]domain.OriginLocation{"58": coordOrigin("58", 33.7, -84.4)},
		zips:    map[string]string{"58": "30310"},
	}
	dist := &fakeDistanceProvider{result: ports.MatrixResult{Resolved: map[string]float64{"58": 30000}}}
	trans := &fakeTransitProvider{results: map[string]*domain.TransitResult{
		"30310": {BusinessTransitDays: 3, SaturdayDelivery: true},
	}}
	resolver, saver := newTestResolver(store, lookup, dist, trans)

	first, err := resolver.ResolveDistanceAndTransit(context.Background(), "30316", []string{"58"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saver.Drain()

	distCalls := len(dist.calls)
	transCalls := trans.callCount()

	second, err := resolver.ResolveDistanceAndTransit(context.Background(), "30316", []string{"58"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saver.Drain()

	if len(dist.calls) != distCalls || trans.callCount() != transCalls {
		t.Fatal("second resolution must be served from the store")
	}

	f1, f2 := first["58"], second["58"]
	if *f1.DistanceMeters != *f2.DistanceMeters {
		t.Fatalf("distance changed between runs: %v vs %v", *f1.DistanceMeters, *f2.DistanceMeters)
	}
	if *f1.BusinessTransitDays != *f2.BusinessTransitDays {
		t.Fatalf("transit changed between runs: %v vs %v", *f1.BusinessTransitDays, *f2.BusinessTransitDays)
	}
	if !f1.RequiresSaving || f2.RequiresSaving {
		t.Fatalf("RequiresSaving first=%v second=%v, want true/false", f1.RequiresSaving, f2.RequiresSaving)
	}
}
