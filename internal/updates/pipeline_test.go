package updates

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPipeline(db)
}

func TestBusSubscribePublish(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(types.UpdateListItem{ID: "u1"})

	select {
	case item := <-ch:
		if item.ID != "u1" {
			t.Errorf("item.ID = %q, want %q", item.ID, "u1")
		}
	case <-time.After(time.Second):
		t.Fatal("no item received")
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	// Publishing after cancel must not panic.
	b.Publish(types.UpdateListItem{ID: "u2"})
	// Cancelling twice must not panic either.
	cancel()
}

func TestBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the subscriber buffer without draining it.
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(types.UpdateListItem{ID: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if len(ch) != subscriberBufferSize {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBufferSize)
	}
}

func TestPipelineAddPersistsAndBroadcasts(t *testing.T) {
	p := testPipeline(t)
	ch, cancel := p.Bus().Subscribe()
	defer cancel()

	u := p.Make(types.ResourceTarget{Type: types.ResourceDeployment, ID: "d1"}, types.OpDeploy, "user-1")
	if u.Status != types.UpdateInProgress {
		t.Errorf("fresh update status = %q, want InProgress", u.Status)
	}

	id, err := p.Add(u)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" || u.ID != id {
		t.Errorf("Add id = %q, update id = %q", id, u.ID)
	}

	select {
	case item := <-ch:
		if item.ID != id || item.Status != types.UpdateInProgress {
			t.Errorf("broadcast = %+v, want id %q InProgress", item, id)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast on Add")
	}
}

func TestPipelineFinalize(t *testing.T) {
	p := testPipeline(t)

	u := p.Make(types.ResourceTarget{Type: types.ResourceBuild, ID: "b1"}, types.OpRunBuild, "user-1")
	p.Add(u)
	u.PushLog(types.SimpleLog("build", "ok"))

	if err := p.Finalize(u); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if u.Status != types.UpdateComplete || !u.Success {
		t.Errorf("finalized = %q success=%v, want Complete success", u.Status, u.Success)
	}

	// A failed log anywhere fails the whole update, and Finalize is
	// idempotent about it.
	v := p.Make(types.ResourceTarget{Type: types.ResourceBuild, ID: "b1"}, types.OpRunBuild, "user-1")
	p.Add(v)
	v.PushLog(types.SimpleLog("clone", "ok"))
	v.PushError("build", errFake)
	p.Finalize(v)
	if v.Success {
		t.Error("update with failed log reported success")
	}
	end := v.EndTS
	p.Finalize(v)
	if !v.EndTS.Equal(end) {
		t.Error("second Finalize moved the end timestamp")
	}
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "boom" }
