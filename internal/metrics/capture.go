// Package metrics provides Prometheus metrics for capture units.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "fps",
		Help:      "Frames delivered per second",
	}, []string{"device"})

	unitFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames delivered since the unit opened",
	}, []string{"device"})

	unitBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "bytes_total",
		Help:      "Payload bytes delivered since the unit opened",
	}, []string{"device"})

	unitDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "dropped_frames_total",
		Help:      "Frames lost to stream restarts",
	}, []string{"device"})

	unitRestarts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "restarts_total",
		Help:      "Automatic stream restarts",
	}, []string{"device"})

	unitHandlerErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "handler_errors_total",
		Help:      "Frames the downstream handler failed on",
	}, []string{"device"})

	unitStreaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camunit",
		Subsystem: "capture",
		Name:      "streaming",
		Help:      "1 while the unit is streaming",
	}, []string{"device"})

	// Local cache for SSE exporter access.
	unitCache   = make(map[string]*UnitMetrics)
	unitCacheMu sync.RWMutex
)

// UnitMetrics holds current metric values for a unit.
type UnitMetrics struct {
	FPS           float64
	Frames        uint64
	Bytes         uint64
	Dropped       uint64
	Restarts      uint64
	HandlerErrors uint64
	Streaming     bool
}

// SetUnitMetrics records the current values for a device.
func SetUnitMetrics(deviceID string, m UnitMetrics) {
	unitFPS.WithLabelValues(deviceID).Set(m.FPS)
	unitFrames.WithLabelValues(deviceID).Set(float64(m.Frames))
	unitBytes.WithLabelValues(deviceID).Set(float64(m.Bytes))
	unitDropped.WithLabelValues(deviceID).Set(float64(m.Dropped))
	unitRestarts.WithLabelValues(deviceID).Set(float64(m.Restarts))
	unitHandlerErrors.WithLabelValues(deviceID).Set(float64(m.HandlerErrors))
	streaming := 0.0
	if m.Streaming {
		streaming = 1
	}
	unitStreaming.WithLabelValues(deviceID).Set(streaming)

	unitCacheMu.Lock()
	unitCache[deviceID] = &m
	unitCacheMu.Unlock()
}

// DeleteUnitMetrics removes all metrics for a device.
func DeleteUnitMetrics(deviceID string) {
	for _, g := range []*prometheus.GaugeVec{
		unitFPS, unitFrames, unitBytes, unitDropped, unitRestarts, unitHandlerErrors, unitStreaming,
	} {
		g.DeleteLabelValues(deviceID)
	}

	unitCacheMu.Lock()
	delete(unitCache, deviceID)
	unitCacheMu.Unlock()
}

// GetUnitMetrics returns current metric values for a device.
func GetUnitMetrics(deviceID string) *UnitMetrics {
	unitCacheMu.RLock()
	defer unitCacheMu.RUnlock()
	if m, ok := unitCache[deviceID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllUnitMetrics returns metrics for all tracked units.
func GetAllUnitMetrics() map[string]*UnitMetrics {
	unitCacheMu.RLock()
	defer unitCacheMu.RUnlock()
	result := make(map[string]*UnitMetrics, len(unitCache))
	for id, m := range unitCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

// UnitIDs returns the tracked device ids in sorted order.
func UnitIDs() []string {
	unitCacheMu.RLock()
	defer unitCacheMu.RUnlock()
	ids := make([]string, 0, len(unitCache))
	for id := range unitCache {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
