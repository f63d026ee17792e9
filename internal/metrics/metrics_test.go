package metrics

import "testing"

func TestEncoderMetricsCache(t *testing.T) {
	SetEncoderBitrate("cache-test", 192.0)
	SetEncoderSpeed("cache-test", 1.01)
	SetEncoderBytes("cache-test", 512*1024)

	m := GetEncoderMetrics("cache-test")
	if m == nil {
		t.Fatal("Expected cached metrics")
	}
	if m.BitrateKbps != 192.0 || m.Speed != 1.01 || m.BytesWritten != 512*1024 {
		t.Errorf("Cached values = %+v", m)
	}

	// The returned struct is a copy.
	m.BitrateKbps = 0
	if GetEncoderMetrics("cache-test").BitrateKbps != 192.0 {
		t.Error("Cache was mutated through the returned copy")
	}

	DeleteEncoderMetrics("cache-test")
	if GetEncoderMetrics("cache-test") != nil {
		t.Error("Metrics survived deletion")
	}
}

func TestGetEncoderMetrics_Unknown(t *testing.T) {
	if GetEncoderMetrics("never-seen") != nil {
		t.Error("Unknown stream should have no metrics")
	}
}
