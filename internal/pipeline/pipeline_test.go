package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/collect"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/score"
	"github.com/sells-group/leadgen-cli/internal/store"
)

type fakeStore struct {
	runs      map[string]*model.Run
	leads     map[string][]model.Lead
	completed map[string]model.RunStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      make(map[string]*model.Run),
		leads:     make(map[string][]model.Lead),
		completed: make(map[string]model.RunStatus),
	}
}

func (f *fakeStore) CreateRun(_ context.Context, query string) (*model.Run, error) {
	run := &model.Run{ID: "run-1", Query: query, Status: model.RunStatusRunning}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	f.completed[runID] = status
	return nil
}

func (f *fakeStore) CompleteRun(_ context.Context, runID string, status model.RunStatus, summary *model.Summary) error {
	f.completed[runID] = status
	f.runs[runID].Summary = summary
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return f.runs[runID], nil
}

func (f *fakeStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (f *fakeStore) SaveLeads(_ context.Context, runID string, leads []model.Lead) error {
	f.leads[runID] = leads
	return nil
}

func (f *fakeStore) ListLeads(_ context.Context, runID string) ([]model.Lead, error) {
	return f.leads[runID], nil
}

func (f *fakeStore) GetSite(context.Context, string) (*model.SiteContent, error) { return nil, nil }
func (f *fakeStore) PutSite(context.Context, string, *model.SiteContent, time.Duration) error {
	return nil
}
func (f *fakeStore) DeleteExpiredSites(context.Context) (int, error) { return 0, nil }
func (f *fakeStore) GetSyncState(context.Context, string) (*model.SyncState, error) {
	return nil, nil
}
func (f *fakeStore) PutSyncState(context.Context, model.SyncState) error { return nil }
func (f *fakeStore) Migrate(context.Context) error                       { return nil }
func (f *fakeStore) Close() error                                        { return nil }

type fakeCollector struct {
	listings []model.Listing
	err      error
}

func (f *fakeCollector) Collect(context.Context, string) ([]model.Listing, *collect.Stats, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.listings, &collect.Stats{Fetched: len(f.listings) + 2, Admitted: len(f.listings)}, nil
}

type fakeEnricher struct {
	status map[string]model.RecordStatus
}

func (f *fakeEnricher) EnrichBatch(_ context.Context, listings []model.Listing) []model.EnrichmentRecord {
	records := make([]model.EnrichmentRecord, len(listings))
	for i, l := range listings {
		status, ok := f.status[l.PlaceID]
		if !ok {
			status = model.StatusSuccess
		}
		records[i] = model.EnrichmentRecord{
			Listing: l,
			Status:  status,
		}
		if status == model.StatusSuccess {
			records[i].Extraction = &model.Extraction{StaffCount: 5, Confidence: model.ConfidenceHigh}
		}
	}
	return records
}

type fakeSyncer struct {
	synced []model.Lead
	err    error
}

func (f *fakeSyncer) UpsertBatch(_ context.Context, leads []model.Lead) (model.SyncOutcome, error) {
	if f.err != nil {
		return model.SyncOutcome{}, f.err
	}
	f.synced = leads
	return model.SyncOutcome{Created: len(leads)}, nil
}

func testTracker(ceiling float64) *cost.Tracker {
	return cost.NewTracker(cost.NewCalculator(cost.DefaultRates()), "claude-haiku-4-5-20251001", ceiling)
}

func testListings(ids ...string) []model.Listing {
	out := make([]model.Listing, len(ids))
	for i, id := range ids {
		out[i] = model.Listing{PlaceID: id, Name: "Vet " + id, Website: "https://" + id + ".example", Rating: 4.5, ReviewCount: 100}
	}
	return out
}

func TestRun_HappyPath(t *testing.T) {
	st := newFakeStore()
	syncer := &fakeSyncer{}
	p := New(st, &fakeCollector{listings: testListings("p1", "p2")}, &fakeEnricher{}, syncer, testTracker(5), score.DefaultWeights())

	run, err := p.Run(context.Background(), "veterinarian in Austin, TX")
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Admitted)
	assert.Equal(t, 2, run.Summary.Enriched)
	assert.Equal(t, 2, run.Summary.Sync.Created)
	assert.Len(t, syncer.synced, 2)
	assert.Len(t, st.leads["run-1"], 2)
}

func TestRun_CollectFailureFailsRun(t *testing.T) {
	st := newFakeStore()
	p := New(st, &fakeCollector{err: assert.AnError}, &fakeEnricher{}, &fakeSyncer{}, testTracker(5), score.DefaultWeights())

	run, err := p.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.RunStatusFailed, st.completed["run-1"])
}

func TestRun_FailedRecordsNotSynced(t *testing.T) {
	st := newFakeStore()
	syncer := &fakeSyncer{}
	enricher := &fakeEnricher{status: map[string]model.RecordStatus{
		"p1": model.StatusFailed,
		"p3": model.StatusPending,
	}}
	p := New(st, &fakeCollector{listings: testListings("p1", "p2", "p3")}, enricher, syncer, testTracker(5), score.DefaultWeights())

	run, err := p.Run(context.Background(), "q")
	require.NoError(t, err)

	// Only p2 reached a scoreable state.
	require.Len(t, syncer.synced, 1)
	assert.Equal(t, "p2", syncer.synced[0].Record.Listing.PlaceID)
	assert.Equal(t, 1, run.Summary.Failed)
	assert.Equal(t, 1, run.Summary.Pending)
}

func TestRun_PartialRecordsAreScoredAndSynced(t *testing.T) {
	st := newFakeStore()
	syncer := &fakeSyncer{}
	enricher := &fakeEnricher{status: map[string]model.RecordStatus{"p1": model.StatusPartial}}
	p := New(st, &fakeCollector{listings: testListings("p1")}, enricher, syncer, testTracker(5), score.DefaultWeights())

	run, err := p.Run(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, syncer.synced, 1)
	// Listing-only points still produce a score.
	assert.Greater(t, syncer.synced[0].Score.Final, 0.0)
	assert.Equal(t, 1, run.Summary.Partial)
}

func TestRun_SyncFailureFailsRun(t *testing.T) {
	st := newFakeStore()
	p := New(st, &fakeCollector{listings: testListings("p1")}, &fakeEnricher{}, &fakeSyncer{err: assert.AnError}, testTracker(5), score.DefaultWeights())

	_, err := p.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, st.completed["run-1"])
}
