// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource is a scriptable Source for cycle tests.
type fakeSource struct {
	name     string
	watts    float64
	err      error
	block    bool // block until the poll context expires
	delay    time.Duration
	collects atomic.Int32
}

func (f *fakeSource) Name() string {
	return f.name
}

func (f *fakeSource) Collect(ctx context.Context, at time.Time) (Reading, error) {
	f.collects.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.block {
		<-ctx.Done()
		return Reading{}, ctx.Err()
	}
	if f.err != nil {
		return Reading{}, f.err
	}
	return Reading{DeviceName: f.name, NowWatts: f.watts, CapturedAt: at}, nil
}

func TestCycleRunCollectsAllSources(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "a", watts: 1},
		&fakeSource{name: "b", watts: 2},
		&fakeSource{name: "c", watts: 3},
	}
	cycle := NewCycle(sources, 2, time.Second)

	set := cycle.Run(context.Background())
	if set.Len() != 3 {
		t.Fatalf("Run() collected %d readings, want 3", set.Len())
	}

	// Readings come back in configuration order regardless of which worker
	// finished first.
	want := []string{"a", "b", "c"}
	for i, r := range set.Readings() {
		if r.DeviceName != want[i] {
			t.Errorf("Readings()[%d] = %q, want %q", i, r.DeviceName, want[i])
		}
	}
}

func TestCycleRunFailureIsolation(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "good-1", watts: 1},
		&fakeSource{name: "bad", err: fmt.Errorf("connection refused")},
		&fakeSource{name: "good-2", watts: 2},
	}
	cycle := NewCycle(sources, 4, time.Second)

	set := cycle.Run(context.Background())
	if set.Len() != 2 {
		t.Fatalf("Run() collected %d readings, want 2", set.Len())
	}
	if _, ok := set.Get("bad"); ok {
		t.Error("failed device should not appear in the reading set")
	}
	if _, ok := set.Get("good-1"); !ok {
		t.Error("good-1 missing: failure was not contained")
	}
	if _, ok := set.Get("good-2"); !ok {
		t.Error("good-2 missing: failure was not contained")
	}
}

func TestCycleRunDeviceTimeout(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "hung", block: true},
		&fakeSource{name: "alive", watts: 5},
	}
	cycle := NewCycle(sources, 2, 50*time.Millisecond)

	start := time.Now()
	set := cycle.Run(context.Background())
	elapsed := time.Since(start)

	if set.Len() != 1 {
		t.Fatalf("Run() collected %d readings, want 1", set.Len())
	}
	if _, ok := set.Get("alive"); !ok {
		t.Error("responsive device should survive a hung peer")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run() took %v, hung device stalled the cycle", elapsed)
	}
}

func TestCycleRunAllSourcesFail(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "a", err: fmt.Errorf("down")},
		&fakeSource{name: "b", err: fmt.Errorf("down")},
	}
	cycle := NewCycle(sources, 2, time.Second)

	set := cycle.Run(context.Background())
	if set.Len() != 0 {
		t.Errorf("Run() collected %d readings, want 0", set.Len())
	}
}

func TestCycleRunSharedTimestamp(t *testing.T) {
	sources := []Source{
		&fakeSource{name: "a", watts: 1},
		&fakeSource{name: "b", watts: 2, delay: 20 * time.Millisecond},
	}
	cycle := NewCycle(sources, 1, time.Second)

	set := cycle.Run(context.Background())
	if set.Len() != 2 {
		t.Fatalf("Run() collected %d readings, want 2", set.Len())
	}

	a, _ := set.Get("a")
	b, _ := set.Get("b")
	if !a.CapturedAt.Equal(b.CapturedAt) {
		t.Errorf("readings do not share the cycle timestamp: %v vs %v", a.CapturedAt, b.CapturedAt)
	}
}

func TestCycleRunEachSourcePolledOnce(t *testing.T) {
	a := &fakeSource{name: "a", watts: 1}
	b := &fakeSource{name: "b", err: fmt.Errorf("down")}
	cycle := NewCycle([]Source{a, b}, 4, time.Second)

	cycle.Run(context.Background())

	if n := a.collects.Load(); n != 1 {
		t.Errorf("source a polled %d times, want 1", n)
	}
	if n := b.collects.Load(); n != 1 {
		t.Errorf("source b polled %d times, want 1 (no retry within a cycle)", n)
	}
}

// normalizingSource runs a raw response through the Kasa normalizer like a
// real device source does.
type normalizingSource struct {
	name string
	raw  map[string]any
}

func (s *normalizingSource) Name() string {
	return s.name
}

func (s *normalizingSource) Collect(ctx context.Context, at time.Time) (Reading, error) {
	return NormalizeKasa(s.name, s.raw, at)
}

// TestCycleFalsyTodayWithTimedOutPeer runs the cycle-to-batch path with one
// healthy device reporting a falsy cumulative value and one hung device: the
// batch must carry exactly one consumption point and no watts_today point.
func TestCycleFalsyTodayWithTimedOutPeer(t *testing.T) {
	sources := []Source{
		&normalizingSource{name: "plug-1", raw: map[string]any{"power_mw": 1500.0, "today": false}},
		&fakeSource{name: "plug-2", block: true},
	}
	cycle := NewCycle(sources, 2, 50*time.Millisecond)

	set := cycle.Run(context.Background())
	if set.Len() != 1 {
		t.Fatalf("Run() collected %d readings, want 1", set.Len())
	}

	r, _ := set.Get("plug-1")
	if r.NowWatts != 1.5 {
		t.Errorf("NowWatts = %v, want 1.5", r.NowWatts)
	}
	if r.TodayWattHours != nil {
		t.Errorf("TodayWattHours = %v, want absent for falsy today", *r.TodayWattHours)
	}

	points := BuildBatch(set)
	if len(points) != 1 {
		t.Fatalf("BuildBatch() = %d points, want exactly 1 consumption point", len(points))
	}
	if _, ok := points[0].Fields[FieldConsumption]; !ok {
		t.Error("batch point is not a consumption point")
	}
	if _, ok := points[0].Fields[FieldWattsToday]; ok {
		t.Error("batch carries a watts_today point for an absent value")
	}
}

func TestNewCycleDefaults(t *testing.T) {
	cycle := NewCycle(nil, 0, 0)
	if cycle.concurrency != defaultConcurrency {
		t.Errorf("concurrency = %d, want default %d", cycle.concurrency, defaultConcurrency)
	}
	if cycle.timeout != defaultDeviceTimeout {
		t.Errorf("timeout = %v, want default %v", cycle.timeout, defaultDeviceTimeout)
	}

	set := cycle.Run(context.Background())
	if set.Len() != 0 {
		t.Errorf("Run() over no sources = %d readings, want 0", set.Len())
	}
}
