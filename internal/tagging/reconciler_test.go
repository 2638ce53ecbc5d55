package tagging

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/store"
)

type fakeCreator struct {
	calls atomic.Int32
	next  atomic.Int32
	err   error
	gate  chan struct{}
}

func (c *fakeCreator) CreateTag(ctx context.Context, name string) (*vault.Tag, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return &vault.Tag{ID: 100 + int(c.next.Add(1)), Name: name}, nil
}

type fakeCatalog struct {
	mu   sync.Mutex
	tags []vault.Tag
}

func (c *fakeCatalog) LookupTag(name string) (vault.Tag, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tags {
		if t.Name == name {
			return t, true
		}
	}
	return vault.Tag{}, false
}

func (c *fakeCatalog) AddTag(tag vault.Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tag)
}

type fakeRefresher struct {
	mutations []store.Mutation
}

func (f *fakeRefresher) AfterMutation(ctx context.Context, m store.Mutation) error {
	f.mutations = append(f.mutations, m)
	return nil
}

func TestResolve_Existing(t *testing.T) {
	gw := &fakeCreator{}
	cat := &fakeCatalog{tags: []vault.Tag{{ID: 1, Name: "irs"}}}
	r := New(gw, cat)
	sel := &Selection{}

	tag, err := r.Resolve(context.Background(), "irs", sel)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tag.ID != 1 {
		t.Errorf("tag = %+v, want id 1", tag)
	}
	if gw.calls.Load() != 0 {
		t.Errorf("CreateTag called %d times, want 0", gw.calls.Load())
	}
	if got := sel.IDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("selection = %v, want [1]", got)
	}
}

func TestResolve_CaseSensitive(t *testing.T) {
	gw := &fakeCreator{}
	cat := &fakeCatalog{tags: []vault.Tag{{ID: 1, Name: "IRS"}}}
	r := New(gw, cat)

	tag, err := r.Resolve(context.Background(), "irs", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tag.ID == 1 || gw.calls.Load() != 1 {
		t.Errorf("tag = %+v, calls = %d; want a new tag", tag, gw.calls.Load())
	}
}

func TestResolve_NameIsNotTrimmed(t *testing.T) {
	gw := &fakeCreator{}
	cat := &fakeCatalog{tags: []vault.Tag{{ID: 1, Name: "Work"}}}
	r := New(gw, cat)

	tag, err := r.Resolve(context.Background(), " Work", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tag.ID == 1 || tag.Name != " Work" || gw.calls.Load() != 1 {
		t.Errorf("tag = %+v, calls = %d; want a new tag named %q", tag, gw.calls.Load(), " Work")
	}
}

func TestResolve_CreatesOnceAndIsIdempotent(t *testing.T) {
	gw := &fakeCreator{}
	cat := &fakeCatalog{}
	ref := &fakeRefresher{}
	rec := notify.NewRecorder()
	r := New(gw, cat, WithRefresher(ref), WithNotifier(rec))
	sel := &Selection{}

	first, err := r.Resolve(context.Background(), "receipts", sel)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), "receipts", sel)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
	if gw.calls.Load() != 1 {
		t.Errorf("CreateTag called %d times, want 1", gw.calls.Load())
	}
	if _, ok := cat.LookupTag("receipts"); !ok {
		t.Error("created tag not added to catalog")
	}
	if sel.Len() != 1 {
		t.Errorf("selection len = %d, want 1", sel.Len())
	}
	if len(ref.mutations) != 1 || ref.mutations[0].Kind != store.TagCreated {
		t.Errorf("mutations = %+v, want one TagCreated", ref.mutations)
	}

	all := rec.All()
	if len(all) != 1 {
		t.Fatalf("notifications = %+v, want one updated in place", all)
	}
	if all[0].Kind != notify.Success || all[0].Message != `Tag "receipts" created!` {
		t.Errorf("notification = %+v", all[0])
	}
}

func TestResolve_ConcurrentSameName(t *testing.T) {
	gw := &fakeCreator{gate: make(chan struct{})}
	r := New(gw, &fakeCatalog{})

	const n = 5
	var wg sync.WaitGroup
	ids := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag, err := r.Resolve(context.Background(), "dup", nil)
			ids[i], errs[i] = tag.ID, err
		}(i)
	}

	// Let the goroutines pile up on the pending creation before releasing it.
	for gw.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(gw.gate)
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("Resolve %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("resolve %d got id %d, want %d", i, ids[i], ids[0])
		}
	}
	if got := gw.calls.Load(); got != 1 {
		t.Errorf("CreateTag called %d times, want 1", got)
	}
}

func TestResolve_FailureLeavesSelection(t *testing.T) {
	gw := &fakeCreator{err: &vault.Error{StatusCode: 500, Message: "boom"}}
	rec := notify.NewRecorder()
	r := New(gw, &fakeCatalog{}, WithNotifier(rec))
	sel := NewSelection(vault.Tag{ID: 1, Name: "irs"})

	_, err := r.Resolve(context.Background(), "new", sel)
	var apiErr *vault.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *vault.Error", err)
	}
	if got := sel.IDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("selection = %v, want unchanged [1]", got)
	}
	last, _ := rec.Last()
	if last.Kind != notify.Error || last.Message != "Failed to create tag." {
		t.Errorf("notification = %+v", last)
	}
}

func TestResolve_UnauthorizedIsNotNotified(t *testing.T) {
	gw := &fakeCreator{err: &vault.Error{StatusCode: 401, Message: "Invalid token."}}
	rec := notify.NewRecorder()
	hooked := 0
	r := New(gw, &fakeCatalog{}, WithNotifier(rec), WithUnauthorized(func(error) { hooked++ }))
	sel := NewSelection()

	if _, err := r.Resolve(context.Background(), "irs", sel); !vault.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if hooked != 1 {
		t.Errorf("hook calls = %d, want 1", hooked)
	}
	if n := rec.Count(notify.Error); n != 0 {
		t.Errorf("error notifications = %d, want 0: %+v", n, rec.All())
	}
	if n := rec.Count(notify.Loading); n != 0 {
		t.Errorf("pending notification left behind: %+v", rec.All())
	}
	if sel.Len() != 0 {
		t.Errorf("selection = %v, want empty", sel.IDs())
	}
}

func TestResolve_CreationOutlivesCancelledCaller(t *testing.T) {
	gw := &fakeCreator{gate: make(chan struct{})}
	r := New(gw, &fakeCatalog{})
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		tag vault.Tag
		err error
	}
	done := make(chan result, 1)
	go func() {
		tag, err := r.Resolve(ctx, "irs", nil)
		done <- result{tag, err}
	}()
	for gw.calls.Load() == 0 {
		runtime.Gosched()
	}
	cancel()
	close(gw.gate)

	res := <-done
	if res.err != nil {
		t.Fatalf("Resolve failed: %v", res.err)
	}
	// Later callers reuse the created tag.
	again, err := r.Resolve(context.Background(), "irs", nil)
	if err != nil || again.ID != res.tag.ID || gw.calls.Load() != 1 {
		t.Errorf("again = %+v, %v; calls = %d", again, err, gw.calls.Load())
	}
}

func TestResolve_EmptyName(t *testing.T) {
	gw := &fakeCreator{}
	r := New(gw, &fakeCatalog{})
	if _, err := r.Resolve(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}
	if gw.calls.Load() != 0 {
		t.Error("CreateTag called for an empty name")
	}
}

func TestResolveAll(t *testing.T) {
	gw := &fakeCreator{}
	cat := &fakeCatalog{tags: []vault.Tag{{ID: 1, Name: "irs"}}}
	r := New(gw, cat)
	sel := &Selection{}

	tags, err := r.ResolveAll(context.Background(), []string{"irs", "2024", "irs"}, sel)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(tags) != 3 {
		t.Errorf("len(tags) = %d, want 3", len(tags))
	}
	if got := sel.IDs(); len(got) != 2 || got[0] != 1 {
		t.Errorf("selection = %v, want [1 <new>]", got)
	}

	gw.err = errors.New("offline")
	_, err = r.ResolveAll(context.Background(), []string{"irs", "later"}, sel)
	if err == nil {
		t.Fatal("expected error")
	}
	if sel.Len() != 2 {
		t.Errorf("selection len = %d, want 2", sel.Len())
	}
}
