package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/cache"
	"github.com/ignite/attribution-monitor/internal/pkg/httpretry"
)

// fakeFetcher serves canned results per (app, endpoint) and records calls.
// Unconfigured downloads succeed with an empty body.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]httpretry.Result
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]httpretry.Result)}
}

func (f *fakeFetcher) set(appID string, ep appsflyer.Endpoint, res httpretry.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[appID+"/"+ep.Name] = res
}

func (f *fakeFetcher) Fetch(ctx context.Context, ep appsflyer.Endpoint, appID string, rng appsflyer.DateRange) httpretry.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, appID+"/"+ep.Name)
	if res, ok := f.responses[appID+"/"+ep.Name]; ok {
		return res
	}
	return csvOK("")
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) called(appID string, ep appsflyer.Endpoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == appID+"/"+ep.Name {
			return true
		}
	}
	return false
}

func csvOK(body string) httpretry.Result {
	return httpretry.Result{Kind: httpretry.KindSuccess, StatusCode: 200, Body: []byte(body), Attempts: 1}
}

var (
	timedOut = httpretry.Result{Kind: httpretry.KindTimeout, Attempts: 1, Err: context.DeadlineExceeded}
	limited  = httpretry.Result{
		Kind:       httpretry.KindLimited,
		StatusCode: 403,
		Reason:     "your current subscription package doesn't include raw data reports",
		Attempts:   1,
	}
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestService(f Fetcher, store cache.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewService(f, store, opts)
}

// failingStore fails every call.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (*cache.Entry, error)    { return nil, errStoreDown }
func (failingStore) Put(context.Context, string, []byte) error            { return errStoreDown }
func (failingStore) DeleteByPrefix(context.Context, string) (int, error)  { return 0, errStoreDown }
func (failingStore) Latest(context.Context, string) (*cache.Entry, error) { return nil, errStoreDown }

// heldLock is a lock somebody else always owns.
type heldLock struct{}

func (heldLock) Acquire(context.Context) (bool, error) { return false, nil }
func (heldLock) Release(context.Context) error         { return nil }

