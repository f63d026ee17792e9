// Package metrics provides Prometheus metrics for the encoders and
// the broker.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "encoder",
		Name:      "bitrate_kbps",
		Help:      "Current encoder output bitrate in kbit/s",
	}, []string{"stream_id"})

	encoderBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "encoder",
		Name:      "bytes_written_total",
		Help:      "Total bytes pushed to the broker",
	}, []string{"stream_id"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "encoder",
		Name:      "processing_speed",
		Help:      "Encoder speed multiplier relative to realtime",
	}, []string{"stream_id"})

	encoderUptime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "encoder",
		Name:      "uptime_seconds",
		Help:      "Seconds since the encoder process spawned",
	}, []string{"stream_id"})

	brokerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "broker",
		Name:      "up",
		Help:      "Whether the broker answers its admin interface (1) or not (0)",
	})

	brokerListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "broker",
		Name:      "listeners",
		Help:      "Total listeners connected to the broker",
	})

	brokerSources = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "broker",
		Name:      "sources",
		Help:      "Active source connections on the broker",
	})

	// Local cache for SSE exporter access.
	encoderCache   = make(map[string]*EncoderStreamMetrics)
	encoderCacheMu sync.RWMutex
)

// EncoderStreamMetrics holds current metric values for a stream.
type EncoderStreamMetrics struct {
	BitrateKbps  float64
	BytesWritten float64
	Speed        float64
	Uptime       float64
}

// SetEncoderBitrate sets the current output bitrate for a stream.
func SetEncoderBitrate(streamID string, kbps float64) {
	encoderBitrate.WithLabelValues(streamID).Set(kbps)
	updateCache(streamID, func(m *EncoderStreamMetrics) { m.BitrateKbps = kbps })
}

// SetEncoderBytes sets the total bytes written for a stream.
func SetEncoderBytes(streamID string, bytes float64) {
	encoderBytes.WithLabelValues(streamID).Set(bytes)
	updateCache(streamID, func(m *EncoderStreamMetrics) { m.BytesWritten = bytes })
}

// SetEncoderSpeed sets the speed multiplier for a stream.
func SetEncoderSpeed(streamID string, speed float64) {
	encoderSpeed.WithLabelValues(streamID).Set(speed)
	updateCache(streamID, func(m *EncoderStreamMetrics) { m.Speed = speed })
}

// SetEncoderUptime sets the encoder uptime for a stream.
func SetEncoderUptime(streamID string, seconds float64) {
	encoderUptime.WithLabelValues(streamID).Set(seconds)
	updateCache(streamID, func(m *EncoderStreamMetrics) { m.Uptime = seconds })
}

// SetBrokerUp records broker admin reachability.
func SetBrokerUp(up bool) {
	if up {
		brokerUp.Set(1)
	} else {
		brokerUp.Set(0)
	}
}

// SetBrokerTotals records broker-wide listener and source counts.
func SetBrokerTotals(listeners, sources int) {
	brokerListeners.Set(float64(listeners))
	brokerSources.Set(float64(sources))
}

// DeleteEncoderMetrics removes all metrics for a stream.
func DeleteEncoderMetrics(streamID string) {
	encoderBitrate.DeleteLabelValues(streamID)
	encoderBytes.DeleteLabelValues(streamID)
	encoderSpeed.DeleteLabelValues(streamID)
	encoderUptime.DeleteLabelValues(streamID)

	encoderCacheMu.Lock()
	delete(encoderCache, streamID)
	encoderCacheMu.Unlock()
}

// GetEncoderMetrics returns current metric values for a stream.
func GetEncoderMetrics(streamID string) *EncoderStreamMetrics {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	if m, ok := encoderCache[streamID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(streamID string, apply func(*EncoderStreamMetrics)) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	m, ok := encoderCache[streamID]
	if !ok {
		m = &EncoderStreamMetrics{}
		encoderCache[streamID] = m
	}
	apply(m)
}
