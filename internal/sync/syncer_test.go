package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

type memStateStore struct {
	states map[string]model.SyncState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]model.SyncState)}
}

func (s *memStateStore) GetSyncState(_ context.Context, externalID string) (*model.SyncState, error) {
	st, ok := s.states[externalID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memStateStore) PutSyncState(_ context.Context, state model.SyncState) error {
	s.states[state.ExternalID] = state
	return nil
}

func noRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 1}
}

func testLead(placeID string, final float64) model.Lead {
	return model.Lead{
		Record: model.EnrichmentRecord{
			Listing: model.Listing{
				PlaceID:     placeID,
				Name:        "Lakeside Vets",
				Address:     "500 Lake Dr, Austin, TX",
				Phone:       "(512) 555-0101",
				Website:     "https://lakeside.example",
				Rating:      4.7,
				ReviewCount: 220,
			},
			Extraction: &model.Extraction{
				StaffCount:       5,
				Services:         []string{"surgery", "dental"},
				EmergencyService: true,
				OnlineBooking:    true,
				DecisionContact:  &model.DecisionContact{Name: "Dr. Reyes", Title: "Owner", Email: "reyes@lakeside.example"},
				Confidence:       model.ConfidenceHigh,
			},
			Status:     model.StatusSuccess,
			EnrichedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		Score: model.ScoreResult{Final: final, Tier: model.TierHot},
	}
}

func emptyQueryResponse() *notionapi.DatabaseQueryResponse {
	return &notionapi.DatabaseQueryResponse{}
}

func pageResponse(id string) *notionapi.DatabaseQueryResponse {
	return &notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: notionapi.ObjectID(id)}},
	}
}

func TestUpsertBatch_CreatesNewLead(t *testing.T) {
	mn := new(mockNotion)
	mn.On("QueryDatabase", mock.Anything, "db1", mock.Anything).Return(emptyQueryResponse(), nil).Once()
	mn.On("CreatePage", mock.Anything, mock.Anything).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	states := newMemStateStore()
	s := New(mn, states, noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{testLead("p1", 90)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Created: 1}, out)

	st, _ := states.GetSyncState(context.Background(), "p1")
	require.NotNil(t, st)
	assert.Equal(t, "page-1", st.RemoteID)
	assert.NotZero(t, st.PayloadHash)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_UpdatesExistingRemote(t *testing.T) {
	mn := new(mockNotion)
	// No local state, but the remote query finds a page.
	mn.On("QueryDatabase", mock.Anything, "db1", mock.Anything).Return(pageResponse("page-9"), nil).Once()
	mn.On("UpdatePage", mock.Anything, "page-9", mock.Anything).Return(&notionapi.Page{ID: "page-9"}, nil).Once()

	s := New(mn, newMemStateStore(), noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{testLead("p1", 90)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Updated: 1}, out)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_SkipsUnchangedLead(t *testing.T) {
	lead := testLead("p1", 90)

	states := newMemStateStore()
	require.NoError(t, states.PutSyncState(context.Background(), model.SyncState{
		ExternalID:  "p1",
		RemoteID:    "page-1",
		PayloadHash: PayloadHash(lead),
	}))

	mn := new(mockNotion) // no expectations: no API call may happen
	s := New(mn, states, noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{lead})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Skipped: 1}, out)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_ChangedLeadUpdatesViaStoredID(t *testing.T) {
	old := testLead("p1", 70)
	states := newMemStateStore()
	require.NoError(t, states.PutSyncState(context.Background(), model.SyncState{
		ExternalID:  "p1",
		RemoteID:    "page-1",
		PayloadHash: PayloadHash(old),
	}))

	mn := new(mockNotion)
	// Stored remote ID means no lookup query.
	mn.On("UpdatePage", mock.Anything, "page-1", mock.Anything).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	s := New(mn, states, noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{testLead("p1", 95)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Updated: 1}, out)

	st, _ := states.GetSyncState(context.Background(), "p1")
	assert.Equal(t, PayloadHash(testLead("p1", 95)), st.PayloadHash)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_FailureIsIsolated(t *testing.T) {
	mn := new(mockNotion)
	mn.On("QueryDatabase", mock.Anything, "db1", mock.Anything).Return(emptyQueryResponse(), nil).Twice()
	mn.On("CreatePage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	mn.On("CreatePage", mock.Anything, mock.Anything).Return(&notionapi.Page{ID: "page-2"}, nil).Once()

	s := New(mn, newMemStateStore(), noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{testLead("p1", 90), testLead("p2", 85)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Created: 1, Failed: 1}, out)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mn := new(mockNotion)
	s := New(mn, newMemStateStore(), noRetry(), Config{DatabaseID: "db1"})

	_, err := s.UpsertBatch(ctx, []model.Lead{testLead("p1", 90)})
	assert.Error(t, err)
	mn.AssertExpectations(t)
}

func TestUpsertBatch_NilStateStoreStillSyncs(t *testing.T) {
	mn := new(mockNotion)
	mn.On("QueryDatabase", mock.Anything, "db1", mock.Anything).Return(emptyQueryResponse(), nil).Once()
	mn.On("CreatePage", mock.Anything, mock.Anything).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	s := New(mn, nil, noRetry(), Config{DatabaseID: "db1"})

	out, err := s.UpsertBatch(context.Background(), []model.Lead{testLead("p1", 90)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutcome{Created: 1}, out)
	mn.AssertExpectations(t)
}

func TestPayloadHash_StableAndSensitive(t *testing.T) {
	a := testLead("p1", 90)
	b := testLead("p1", 90)
	assert.Equal(t, PayloadHash(a), PayloadHash(b))

	c := testLead("p1", 91)
	assert.NotEqual(t, PayloadHash(a), PayloadHash(c))

	// Fields outside the owned payload do not affect the hash.
	d := testLead("p1", 90)
	d.Record.CostUSD = 1.23
	d.Record.EnrichedAt = time.Now()
	assert.Equal(t, PayloadHash(a), PayloadHash(d))
}
