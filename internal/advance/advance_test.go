package advance

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversAdvance(t *testing.T) {
	bus := NewBus()
	l := bus.Subscribe()
	defer l.Close()

	bus.Publish(Advance{Source: "wal", Seq: 1})

	select {
	case adv := <-l.C():
		assert.Equal(t, uint64(1), adv.Seq)
	case <-time.After(time.Second):
		t.Fatal("no advance delivered")
	}
}

func TestBusCoalescesBursts(t *testing.T) {
	bus := NewBus()
	l := bus.Subscribe()
	defer l.Close()

	// A slow listener sees only the latest advance of a burst.
	for seq := uint64(1); seq <= 5; seq++ {
		bus.Publish(Advance{Source: "wal", Seq: seq})
	}

	adv := <-l.C()
	assert.Equal(t, uint64(5), adv.Seq)

	select {
	case extra := <-l.C():
		t.Fatalf("unexpected second delivery: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusClosedListenerNotDelivered(t *testing.T) {
	bus := NewBus()
	l := bus.Subscribe()
	l.Close()

	bus.Publish(Advance{Source: "wal", Seq: 1})

	select {
	case <-l.C():
		t.Fatal("closed listener received an advance")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerProgress(t *testing.T) {
	tr := NewTracker()

	tr.Record(Advance{Source: "wal", Seq: 3})
	tr.Record(Advance{Source: "cdc", Seq: 9})
	tr.Record(Advance{Source: "wal", Seq: 2}) // stale, seq keeps 3

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "cdc", snap[0].Source)
	assert.Equal(t, uint64(9), snap[0].Seq)
	assert.Equal(t, "wal", snap[1].Source)
	assert.Equal(t, uint64(3), snap[1].Seq)
	assert.False(t, snap[1].ObservedAt.IsZero())

	assert.Equal(t, uint64(3), tr.Seq())
}

func TestWatcherSynthesizesDebouncedAdvance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var mu sync.Mutex
	var got []Advance
	w := NewWatcher(path, "", 50*time.Millisecond, func(adv Advance) {
		mu.Lock()
		got = append(got, adv)
		mu.Unlock()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher time to register, then burst writes.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Seq == 1 && got[0].Source == "file:dataset.db"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
