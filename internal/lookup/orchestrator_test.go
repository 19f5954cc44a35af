package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/crawler"
	pubmemory "github.com/JakeFAU/country-directory/internal/publisher/memory"
	"github.com/JakeFAU/country-directory/internal/storage/memory"
)

const testBaseURL = "https://directory.test/v3.1"

func TestLookup_ValidationNeverTouchesStore(t *testing.T) {
	t.Parallel()

	store := &countingStore{ResultStore: memory.NewResultStore()}
	engine := &fakeEngine{}
	o := newTestOrchestrator(store, engine, nil, Config{})

	_, err := o.Lookup(context.Background(), country.Query{})
	requireFailure(t, err, http.StatusBadRequest, country.MsgNoCriteria)

	_, err = o.Lookup(context.Background(), country.Query{Name: ptr("Poland"), Region: ptr("Europe")})
	requireFailure(t, err, http.StatusBadRequest, country.MsgMultipleCriteria)

	require.Zero(t, store.calls())
	require.Zero(t, engine.count())
}

func TestLookup_ReturnsResolvedRecords(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{complete: succeedWith(`{"name":{"common":"Poland"}}`)}
	o := newTestOrchestrator(memory.NewResultStore(), engine, nil, Config{})

	records, err := o.Lookup(context.Background(), country.Query{Name: ptr(" Poland ")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.JSONEq(t, `{"name":{"common":"Poland"}}`, string(records[0]))

	item := engine.item(0)
	require.Equal(t, country.Criterion{Field: country.FieldName, Value: "Poland"}, item.Task.Criterion)
	require.Equal(t, testBaseURL, item.Task.BaseURL)
	require.Equal(t, "task-1", item.TaskID)
}

func TestLookup_FailureOutcomeIsReturned(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{complete: func(item crawler.QueueItem) {
		item.Handler(crawler.Completion{
			TaskID:    item.TaskID,
			Criterion: item.Task.Criterion,
			Result:    crawler.Result{Outcome: country.Failed(country.NotFound())},
		})
	}}
	o := newTestOrchestrator(memory.NewResultStore(), engine, nil, Config{})

	_, err := o.Lookup(context.Background(), country.Query{Name: ptr("Atlantis")})
	requireFailure(t, err, http.StatusNotFound, country.MsgNotFound)
}

func TestLookup_RedispatchesAfterConsumption(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	engine := &fakeEngine{complete: succeedWith(`{"region":"Europe"}`)}
	o := newTestOrchestrator(store, engine, nil, Config{})

	for range 2 {
		_, err := o.Lookup(context.Background(), country.Query{Region: ptr("Europe")})
		require.NoError(t, err)
	}
	require.Equal(t, 2, engine.count())
	require.Zero(t, store.Len())
}

func TestLookup_ConcurrentCallersShareOneDispatch(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	engine := &fakeEngine{}
	o := newTestOrchestrator(store, engine, nil, Config{Timeout: time.Second, PollInterval: 5 * time.Millisecond})

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		timeouts  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Lookup(context.Background(), country.Query{Capital: ptr("Warsaw")})
			mu.Lock()
			defer mu.Unlock()
			var failure *country.Failure
			switch {
			case err == nil:
				successes++
			case errors.As(err, &failure) && failure.Kind == country.KindTimeout:
				timeouts++
			}
		}()
	}

	require.Eventually(t, func() bool { return engine.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, engine.count(), "callers of a pending key must join the in-flight task")

	// The first task resolves; one caller consumes the outcome and the rest
	// start a second window that never resolves.
	succeedWith(`{"capital":["Warsaw"]}`)(engine.item(0))
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, callers-1, timeouts)
	require.Equal(t, 2, engine.count())
}

func TestLookup_TimeoutWhenTaskNeverCompletes(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	engine := &fakeEngine{}
	o := newTestOrchestrator(store, engine, nil, Config{Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	start := time.Now()
	_, err := o.Lookup(context.Background(), country.Query{Currency: ptr("pln")})
	requireFailure(t, err, http.StatusGatewayTimeout, country.MsgBudgetExceeded)
	require.Less(t, time.Since(start), time.Second)

	// the in-flight task keeps its pending entry for a later request
	require.Equal(t, 1, store.Len())

	succeedWith(`{"currencies":{"PLN":{}}}`)(engine.item(0))
	records, err := o.Lookup(context.Background(), country.Query{Currency: ptr("pln")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, engine.count())
}

func TestLookup_CanceledCallerTimesOut(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	o := newTestOrchestrator(memory.NewResultStore(), engine, nil, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := o.Lookup(ctx, country.Query{Language: ptr("polish")})
	requireFailure(t, err, http.StatusGatewayTimeout, country.MsgBudgetExceeded)
	require.Equal(t, 1, engine.count())
}

func TestLookup_DispatchFailureReleasesKey(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	engine := &fakeEngine{err: errors.New("queue full")}
	o := newTestOrchestrator(store, engine, nil, Config{})

	_, err := o.Lookup(context.Background(), country.Query{Subregion: ptr("Central Europe")})
	requireFailure(t, err, http.StatusInternalServerError, country.MsgDispatch)
	require.Zero(t, store.Len())

	engine.setErr(nil)
	engine.complete = succeedWith(`{"subregion":"Central Europe"}`)
	_, err = o.Lookup(context.Background(), country.Query{Subregion: ptr("Central Europe")})
	require.NoError(t, err)
}

func TestLookup_IDFailureReleasesKey(t *testing.T) {
	t.Parallel()

	store := memory.NewResultStore()
	engine := &fakeEngine{}
	o := New(store, engine, nil, nil, fixedClock{}, failingIDs{}, Config{BaseURL: testBaseURL}, zap.NewNop())

	_, err := o.Lookup(context.Background(), country.Query{Name: ptr("Poland")})
	requireFailure(t, err, http.StatusInternalServerError, country.MsgDispatch)
	require.Zero(t, store.Len())
	require.Zero(t, engine.count())
}

func TestLookup_PublishesCompletionEvent(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New(0)
	engine := &fakeEngine{complete: succeedWith(`{"name":{"common":"Poland"}}`)}
	o := newTestOrchestrator(memory.NewResultStore(), engine, pub, Config{Topic: "lookups"})

	_, err := o.Lookup(context.Background(), country.Query{Name: ptr("Poland")})
	require.NoError(t, err)

	// the event is published after the outcome is resolved
	require.Eventually(t, func() bool { return len(pub.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	msgs := pub.Messages()
	require.Equal(t, "lookups", msgs[0].Topic)
	ev, ok := msgs[0].Payload.(CompletedEvent)
	require.True(t, ok)
	require.Equal(t, eventTypeCompleted, ev.Type)
	require.Equal(t, "name:Poland", ev.Key)
	require.Equal(t, "name", ev.Field)
	require.Equal(t, http.StatusOK, ev.Status)
	require.Equal(t, 1, ev.RecordCount)
	require.Equal(t, "task-1", ev.TaskID)
	require.Equal(t, "hash-of-"+`[{"name":{"common":"Poland"}}]`, ev.PayloadSHA256)
}

func TestLookup_PublishFailureDoesNotFailLookup(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New(0)
	pub.FailWith(errors.New("pubsub down"))
	engine := &fakeEngine{complete: succeedWith(`{"name":{"common":"Peru"}}`)}
	o := newTestOrchestrator(memory.NewResultStore(), engine, pub, Config{Topic: "lookups"})

	records, err := o.Lookup(context.Background(), country.Query{Name: ptr("Peru")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, pub.Messages())
}

func newTestOrchestrator(
	store country.ResultStore,
	engine *fakeEngine,
	pub country.Publisher,
	cfg Config,
) *Orchestrator {
	cfg.BaseURL = testBaseURL
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	return New(store, engine, pub, fakeHasher{}, fixedClock{}, &sequentialIDs{}, cfg, zap.NewNop())
}

func requireFailure(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var failure *country.Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, status, failure.Status)
	require.Equal(t, msg, failure.Message)
}

// succeedWith resolves an item with a single record, the way a worker would.
func succeedWith(record string) func(crawler.QueueItem) {
	return func(item crawler.QueueItem) {
		body := "[" + record + "]"
		item.Handler(crawler.Completion{
			TaskID:    item.TaskID,
			Criterion: item.Task.Criterion,
			Result: crawler.Result{
				Outcome:    country.Success([]country.Record{json.RawMessage(record)}),
				StatusCode: http.StatusOK,
				Body:       []byte(body),
			},
			Submitted:  item.Submitted,
			FinishedAt: time.Unix(200, 0),
		})
	}
}

func ptr(s string) *string { return &s }

type fakeEngine struct {
	mu       sync.Mutex
	items    []crawler.QueueItem
	err      error
	complete func(crawler.QueueItem)
}

func (e *fakeEngine) Submit(_ context.Context, item crawler.QueueItem) error {
	e.mu.Lock()
	if e.err != nil {
		err := e.err
		e.mu.Unlock()
		return err
	}
	e.items = append(e.items, item)
	complete := e.complete
	e.mu.Unlock()
	if complete != nil {
		go complete(item)
	}
	return nil
}

func (e *fakeEngine) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *fakeEngine) item(i int) crawler.QueueItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.items[i]
}

type countingStore struct {
	country.ResultStore
	mu sync.Mutex
	n  int
}

func (s *countingStore) record() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
}

func (s *countingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *countingStore) Begin(key string) bool {
	s.record()
	return s.ResultStore.Begin(key)
}

func (s *countingStore) Take(key string) (country.Outcome, country.EntryState) {
	s.record()
	return s.ResultStore.Take(key)
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("task-%d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return "hash-of-" + string(data), nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Unix(100, 0)
}
