package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/extractor/oembed"
	"github.com/JakeFAU/catalog-enricher/internal/updater"
)

const ytURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeStore struct {
	mu         sync.Mutex
	records    map[string]enrich.Record
	gets       int
	writes     []enrich.RecordUpdate
	failWrites map[int]error // keyed by zero-based write index
}

func newFakeStore(recs ...enrich.Record) *fakeStore {
	s := &fakeStore{records: map[string]enrich.Record{}, failWrites: map[int]error{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (enrich.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	rec, ok := s.records[id]
	if !ok {
		return enrich.Record{}, enrich.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) Update(_ context.Context, id string, u enrich.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.writes)
	s.writes = append(s.writes, u)
	if err := s.failWrites[idx]; err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return enrich.ErrNotFound
	}
	s.records[id] = u.ApplyTo(rec)
	return nil
}

func (s *fakeStore) record(id string) enrich.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type fakeStrategy struct {
	name    string
	applies bool
	res     enrich.Result
	err     error
	block   bool
	calls   atomic.Int32
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) Applies(string) bool { return f.applies }

func (f *fakeStrategy) Extract(ctx context.Context, _ string) (enrich.Result, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return enrich.Result{}, ctx.Err()
	}
	return f.res, f.err
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type countingThumbs struct{ calls atomic.Int32 }

func (c *countingThumbs) Resolve(context.Context, string) string {
	c.calls.Add(1)
	return "https://thumbs.example/resolved.jpg"
}

func pendingRecord(id, url string) enrich.Record {
	return enrich.Record{
		ID:             id,
		SourceURL:      url,
		Title:          "Loading...",
		Description:    "Loading...",
		Creator:        "Loading...",
		Tags:           []string{},
		MetadataStatus: enrich.StatusPending,
	}
}

func newOrchestrator(store enrich.RecordStore, strategies ...enrich.Strategy) *Orchestrator {
	clock := &fixedClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	return New(store, strategies, updater.New(updater.Config{}), clock, zap.NewNop())
}

func TestRunMissingSourceURLFailsWithoutIO(t *testing.T) {
	t.Parallel()

	store := newFakeStore(enrich.Record{ID: "rec-1", MetadataStatus: enrich.StatusPending})
	primary := &fakeStrategy{name: "primary", applies: true}
	o := newOrchestrator(store, primary)

	out, err := o.Run(context.Background(), enrich.Event{RecordID: "rec-1"})

	var missing *enrich.MissingInputError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, enrich.StatusFailed, out.Status)
	require.Zero(t, primary.calls.Load(), "no extraction may run")
	require.Zero(t, store.gets)
	require.Equal(t, 1, store.writeCount())

	rec := store.record("rec-1")
	require.Equal(t, enrich.StatusFailed, rec.MetadataStatus)
	require.True(t, rec.EnrichmentFailed)
	require.Equal(t, "No source URL provided", rec.EnrichmentError)
}

func TestRunPrimarySuccessScenario(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	result := enrich.Result{
		Title:    "Example Title",
		Duration: 212,
		Tags:     []string{"music", "80s"},
	}
	primary := &fakeStrategy{name: "primary", applies: true, res: result}
	fallback := &fakeStrategy{name: "fallback", applies: true}
	o := newOrchestrator(store, primary, fallback)

	out, err := o.Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.NoError(t, err)
	require.Equal(t, enrich.StatusEnriched, out.Status)
	require.Equal(t, "primary", out.Strategy)
	require.Zero(t, fallback.calls.Load())

	require.Equal(t, 2, store.writeCount())
	require.Equal(t, enrich.StatusProcessing, *store.writes[0].MetadataStatus)

	rec := store.record("rec-1")
	require.Equal(t, "Example Title", rec.Title)
	require.Equal(t, 212, rec.Duration)
	require.Equal(t, []string{"music", "80s"}, rec.Tags)
	require.Equal(t, enrich.StatusEnriched, rec.MetadataStatus)
	require.False(t, rec.EnrichmentFailed)
	require.NotNil(t, rec.Metadata)
	require.Equal(t, result, rec.Metadata.Raw)
	require.Equal(t, "youtube", rec.SourceType)
	require.Equal(t, "dQw4w9WgXcQ", rec.SourceID)
}

func TestRunKeepsCuratedFields(t *testing.T) {
	t.Parallel()

	rec := pendingRecord("rec-1", ytURL)
	rec.Title = "Curated Title"
	rec.Duration = 99
	rec.ThumbnailURL = "https://cdn.example/curated.jpg"
	store := newFakeStore(rec)
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{
		Title:     "Extracted",
		Duration:  212,
		Thumbnail: "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
	}}

	_, err := newOrchestrator(store, primary).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.NoError(t, err)

	got := store.record("rec-1")
	require.Equal(t, "Curated Title", got.Title)
	require.Equal(t, 99, got.Duration)
	require.Equal(t, "https://cdn.example/curated.jpg", got.ThumbnailURL)
}

func TestRunUnrecognizedPlatformPropagatesPrimaryFailure(t *testing.T) {
	t.Parallel()

	const vimeo = "https://vimeo.com/76979871"
	store := newFakeStore(pendingRecord("rec-1", vimeo))
	primaryErr := &enrich.ExtractionError{Strategy: "primary", URL: vimeo, Err: errors.New("exit status 1")}
	primary := &fakeStrategy{name: "primary", applies: true, err: primaryErr}
	fallback := &fakeStrategy{name: "fallback", applies: false}

	out, err := newOrchestrator(store, primary, fallback).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: vimeo})
	require.NoError(t, err)
	require.Equal(t, enrich.StatusFailed, out.Status)
	require.ErrorIs(t, out.Cause, primaryErr)
	require.Zero(t, fallback.calls.Load())

	rec := store.record("rec-1")
	require.Equal(t, enrich.StatusFailed, rec.MetadataStatus)
	require.True(t, rec.EnrichmentFailed)
	require.Equal(t, primaryErr.Error(), rec.EnrichmentError)
}

func TestRunFallbackSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	primary := &fakeStrategy{name: "primary", applies: true, err: errors.New("tool crashed")}
	fallback := &fakeStrategy{name: "fallback", applies: true, res: enrich.Result{
		Title:     "Never Gonna Give You Up",
		Creator:   "Rick Astley",
		Thumbnail: "https://thumbs.example/resolved.jpg",
	}}

	out, err := newOrchestrator(store, primary, fallback).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.NoError(t, err)
	require.Equal(t, "fallback", out.Strategy)

	rec := store.record("rec-1")
	require.Equal(t, enrich.StatusEnriched, rec.MetadataStatus)
	require.Zero(t, rec.Duration)
	require.Empty(t, rec.Tags)
	require.NotNil(t, rec.Tags)
	require.Equal(t, "https://thumbs.example/resolved.jpg", rec.ThumbnailURL)
	require.Equal(t, "Rick Astley", rec.Creator)
}

func TestRunPrimaryAndFallbackFailYieldsStub(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	thumbs := &countingThumbs{}
	fallback := oembed.New(srv.Client(), thumbs, oembed.Config{Endpoint: srv.URL}, zap.NewNop())
	primary := &fakeStrategy{name: "primary", applies: true, err: errors.New("tool crashed")}
	store := newFakeStore(pendingRecord("rec-1", ytURL))

	out, err := newOrchestrator(store, primary, fallback).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.NoError(t, err)
	require.Equal(t, enrich.StatusFailed, out.Status)
	require.Equal(t, oembed.Name, out.Strategy)
	require.Error(t, out.Cause)

	rec := store.record("rec-1")
	require.Equal(t, enrich.StatusFailed, rec.MetadataStatus)
	require.True(t, rec.EnrichmentFailed)
	require.NotEmpty(t, rec.EnrichmentError)
	require.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", rec.ThumbnailURL)
	require.Zero(t, thumbs.calls.Load(), "stub branch must not probe thumbnails")
}

func TestRunNoApplicableStrategy(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", "https://example.com/clip"))
	out, err := newOrchestrator(store, &fakeStrategy{name: "fallback"}).Run(
		context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: "https://example.com/clip"})
	require.NoError(t, err)
	require.ErrorIs(t, out.Cause, ErrNoStrategy)
	require.Equal(t, enrich.StatusFailed, store.record("rec-1").MetadataStatus)
}

func TestRunProcessingWriteFailureContinues(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	store.failWrites[0] = errors.New("unavailable")
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{Title: "Example Title"}}

	out, err := newOrchestrator(store, primary).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.NoError(t, err)
	require.Equal(t, enrich.StatusEnriched, out.Status)
	require.Equal(t, "Example Title", store.record("rec-1").Title)
}

func TestRunTerminalWriteFailureAttemptsFailureWrite(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	store.failWrites[1] = errors.New("document too large")
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{Title: "Example Title"}}

	out, err := newOrchestrator(store, primary).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})

	var writeErr *enrich.RecordWriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, "terminal", writeErr.Op)
	require.Equal(t, enrich.StatusFailed, out.Status)
	require.Equal(t, 3, store.writeCount())

	rec := store.record("rec-1")
	require.Equal(t, enrich.StatusFailed, rec.MetadataStatus)
	require.Contains(t, rec.EnrichmentError, "document too large")
}

func TestRunTerminalAndFailureWritesBothFail(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	store.failWrites[1] = errors.New("write 1")
	store.failWrites[2] = errors.New("write 2")
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{Title: "Example Title"}}

	out, err := newOrchestrator(store, primary).Run(context.Background(), enrich.Event{RecordID: "rec-1", SourceURL: ytURL})
	require.Error(t, err)
	require.Empty(t, out.Status)
	require.Equal(t, enrich.StatusProcessing, store.record("rec-1").MetadataStatus, "record is left inconsistent")
}

func TestRunBudgetExceededSkipsTerminalWrite(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	primary := &fakeStrategy{name: "primary", applies: true, block: true}
	fallback := &fakeStrategy{name: "fallback", applies: true}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out, err := newOrchestrator(store, primary, fallback).Run(ctx, enrich.Event{RecordID: "rec-1", SourceURL: ytURL})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, out.Status)
	require.Zero(t, fallback.calls.Load())
	require.Equal(t, 1, store.writeCount())
	require.Equal(t, enrich.StatusProcessing, store.record("rec-1").MetadataStatus)
}

func TestRunMissingRecordWritesNothing(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	primary := &fakeStrategy{name: "primary", applies: true}
	_, err := newOrchestrator(store, primary).Run(context.Background(), enrich.Event{RecordID: "gone", SourceURL: ytURL})
	require.ErrorIs(t, err, enrich.ErrNotFound)
	require.Zero(t, store.writeCount())
	require.Zero(t, primary.calls.Load())
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{
		Title: "Example Title", Duration: 212, Tags: []string{"music", "80s"},
	}}
	clock := &fixedClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	o := New(store, []enrich.Strategy{primary}, updater.New(updater.Config{}), clock, nil)
	ev := enrich.Event{RecordID: "rec-1", SourceURL: ytURL}

	_, err := o.Run(context.Background(), ev)
	require.NoError(t, err)
	first := store.record("rec-1")

	clock.now = clock.now.Add(time.Hour)
	_, err = o.Run(context.Background(), ev)
	require.NoError(t, err)
	second := store.record("rec-1")

	require.Equal(t, first, second)
	require.Equal(t, []string{"music", "80s"}, second.Tags)
}

// Concurrent runs for one record are not mutually excluded: both runs write
// processing and terminal states and the last terminal write wins.
func TestRunConcurrentDuplicateEventsLastWriteWins(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingRecord("rec-1", ytURL))
	primary := &fakeStrategy{name: "primary", applies: true, res: enrich.Result{Title: "Example Title"}}
	o := newOrchestrator(store, primary)
	ev := enrich.Event{RecordID: "rec-1", SourceURL: ytURL}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Run(context.Background(), ev)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 2, primary.calls.Load(), "duplicate delivery is not deduplicated")
	require.Equal(t, 4, store.writeCount())

	store.mu.Lock()
	last := store.writes[len(store.writes)-1]
	store.mu.Unlock()
	final := store.record("rec-1")
	require.NotNil(t, last.MetadataStatus)
	require.Equal(t, *last.MetadataStatus, final.MetadataStatus)
}
