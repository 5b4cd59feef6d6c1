package mux

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/framemux/internal/testutil/testlog"
	"github.com/google/uuid"
)

func newStringTable() *Table[string, int32] {
	return NewTable[string, int32](func(a, b string) bool { return a == b })
}

func TestTableSendDedupsEqualPending(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	first := tbl.Send("ping")
	second := tbl.Send("ping")
	if first != second {
		t.Fatalf("equal pending requests got distinct ids %s %s", first, second)
	}
	if pending, resolved := tbl.Counts(); pending != 1 || resolved != 0 {
		t.Fatalf("counts=(%d,%d) want (1,0)", pending, resolved)
	}

	other := tbl.Send("pong")
	if other == first {
		t.Fatalf("distinct request reused id %s", first)
	}
	if pending, _ := tbl.Counts(); pending != 2 {
		t.Fatalf("pending=%d want 2", pending)
	}
}

func TestTableResolvedRequestIsNotDeduped(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	id := tbl.Send("ping")
	if err := tbl.Resolve(id, 42); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	again := tbl.Send("ping")
	if again == id {
		t.Fatalf("resolved exchange absorbed a new request")
	}
	if s := tbl.Status(again); s != StatusPending {
		t.Fatalf("status=%v want pending", s)
	}
}

func TestTableResolveLifecycle(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	id := tbl.Send("ping")
	if s := tbl.Status(id); s != StatusPending {
		t.Fatalf("status=%v want pending", s)
	}
	if _, ok := tbl.Read(id); ok {
		t.Fatalf("read before resolve returned a value")
	}

	if err := tbl.Resolve(id, 42); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s := tbl.Status(id); s != StatusResolved {
		t.Fatalf("status=%v want resolved", s)
	}
	if got, ok := tbl.Read(id); !ok || got != 42 {
		t.Fatalf("read=(%d,%v) want (42,true)", got, ok)
	}
	for _, p := range tbl.PendingIDs() {
		if p == id {
			t.Fatalf("resolved id still listed as pending")
		}
	}

	if err := tbl.Resolve(id, 7); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second resolve err=%v want ErrAlreadyResolved", err)
	}
	if got, _ := tbl.Read(id); got != 42 {
		t.Fatalf("rejected resolve overwrote response: %d", got)
	}
	if err := tbl.Resolve(uuid.New(), 1); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("unknown resolve err=%v want ErrUnknownRequest", err)
	}
}

func TestTableTakeEvicts(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	id := tbl.Send("ping")
	if err := tbl.Resolve(id, 42); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got, ok := tbl.Take(id); !ok || got != 42 {
		t.Fatalf("take=(%d,%v) want (42,true)", got, ok)
	}
	if s := tbl.Status(id); s != StatusUnknown {
		t.Fatalf("status after take=%v want unknown", s)
	}
	if _, ok := tbl.Take(id); ok {
		t.Fatalf("second take returned a value")
	}
}

func TestTableCancelDropsPendingOnly(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	pending := tbl.Send("ping")
	done := tbl.Send("pong")
	if err := tbl.Resolve(done, 4); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !tbl.Cancel(pending) {
		t.Fatalf("cancel pending request")
	}
	if tbl.Cancel(pending) {
		t.Fatalf("second cancel succeeded")
	}
	if tbl.Cancel(done) {
		t.Fatalf("cancel removed a resolved request")
	}
	if err := tbl.Resolve(pending, 1); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("resolve after cancel err=%v want ErrUnknownRequest", err)
	}
	if got, ok := tbl.Read(done); !ok || got != 4 {
		t.Fatalf("resolved response lost: (%d,%v)", got, ok)
	}
}

func TestTablePendingIDsAscending(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tbl.Send(s)
	}
	ids := tbl.PendingIDs()
	if len(ids) != 8 {
		t.Fatalf("pending ids=%d want 8", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if bytes.Compare(ids[i-1][:], ids[i][:]) >= 0 {
			t.Fatalf("ids out of order at %d: %s >= %s", i, ids[i-1], ids[i])
		}
	}
}

func TestTableFreshIDSkipsCollision(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()
	fixed := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	next := uuid.MustParse("00000000-0000-4000-8000-000000000002")
	calls := 0
	tbl.newID = func() uuid.UUID {
		calls++
		if calls <= 2 {
			return fixed
		}
		return next
	}

	if got := tbl.Send("a"); got != fixed {
		t.Fatalf("first id=%s want %s", got, fixed)
	}
	if got := tbl.Send("b"); got != next {
		t.Fatalf("colliding id not redrawn: %s", got)
	}
}

// Senders of one value race a resolver. Dedup and resolve share the table
// lock, so at most one request for the value is ever pending and every id
// handed out is either resolved or that single pending one.
func TestTableConcurrentSendResolveKeepsOnePending(t *testing.T) {
	testlog.Start(t)
	tbl := newStringTable()

	const senders = 16
	const rounds = 500

	stop := make(chan struct{})
	resolvedCh := make(chan int, 1)
	go func() {
		resolved := 0
		for {
			select {
			case <-stop:
				resolvedCh <- resolved
				return
			default:
			}
			for _, id := range tbl.PendingIDs() {
				if err := tbl.Resolve(id, 1); err == nil {
					resolved++
				}
			}
			if pending, _ := tbl.Counts(); pending > 1 {
				t.Errorf("pending=%d while resolving", pending)
			}
		}
	}()

	var mu sync.Mutex
	seen := make(map[uuid.UUID]struct{})
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				id := tbl.Send("ping")
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
				if pending, _ := tbl.Counts(); pending > 1 {
					t.Errorf("pending=%d after send", pending)
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	resolved := <-resolvedCh

	pending, stored := tbl.Counts()
	if pending > 1 {
		t.Fatalf("pending=%d want at most 1", pending)
	}
	if stored != resolved {
		t.Fatalf("responses=%d but resolver succeeded %d times", stored, resolved)
	}
	if len(seen) != resolved+pending {
		t.Fatalf("ids handed out=%d want resolved+pending=%d", len(seen), resolved+pending)
	}
}
