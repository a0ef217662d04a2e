package metrics

import (
	"sync"
	"testing"
)

func TestUnitMetricsCache(t *testing.T) {
	id := "test-unit-1"
	DeleteUnitMetrics(id)

	if m := GetUnitMetrics(id); m != nil {
		t.Error("expected nil for untracked unit")
	}

	SetUnitMetrics(id, UnitMetrics{FPS: 30, Frames: 900, Bytes: 1 << 20, Dropped: 2, Restarts: 1, Streaming: true})

	m := GetUnitMetrics(id)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FPS != 30 || m.Frames != 900 || m.Dropped != 2 || m.Restarts != 1 || !m.Streaming {
		t.Errorf("metrics = %+v", m)
	}

	// Returned value is a copy
	m.FPS = 1
	if GetUnitMetrics(id).FPS != 30 {
		t.Error("GetUnitMetrics returned shared state")
	}

	DeleteUnitMetrics(id)
	if GetUnitMetrics(id) != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetAllUnitMetrics(t *testing.T) {
	ids := []string{"all-b", "all-a"}
	for _, id := range ids {
		SetUnitMetrics(id, UnitMetrics{Frames: 1})
		defer DeleteUnitMetrics(id)
	}

	all := GetAllUnitMetrics()
	for _, id := range ids {
		if _, ok := all[id]; !ok {
			t.Errorf("missing %s", id)
		}
	}

	sorted := UnitIDs()
	var a, b = -1, -1
	for i, id := range sorted {
		switch id {
		case "all-a":
			a = i
		case "all-b":
			b = i
		}
	}
	if a < 0 || b < 0 || a > b {
		t.Errorf("UnitIDs() = %v, want all-a before all-b", sorted)
	}
}

func TestUnitMetricsConcurrentAccess(t *testing.T) {
	id := "concurrent-unit"
	defer DeleteUnitMetrics(id)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			SetUnitMetrics(id, UnitMetrics{Frames: uint64(n)})
		}(i)
		go func() {
			defer wg.Done()
			_ = GetAllUnitMetrics()
		}()
	}
	wg.Wait()

	if GetUnitMetrics(id) == nil {
		t.Error("expected metrics after concurrent writes")
	}
}
