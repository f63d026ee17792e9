package encoder

import (
	"strings"
	"testing"
)

func TestRing_AppendAndRead(t *testing.T) {
	r := NewRing(100)
	r.AppendLine("first")
	r.AppendLine("second")

	got := r.String()
	if got != "first\nsecond\n" {
		t.Errorf("Unexpected ring content: %q", got)
	}
}

func TestRing_DropsOldestBytes(t *testing.T) {
	r := NewRing(20)
	r.AppendLine("aaaaaaaaaa") // 11 bytes with newline
	r.AppendLine("bbbbbbbbbb") // pushes total to 22, over capacity

	got := r.String()
	if len(got) > 20 {
		t.Fatalf("Ring exceeded capacity: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "bbbbbbbbbb\n") {
		t.Errorf("Newest content must be retained, got %q", got)
	}
	if strings.HasPrefix(got, "aaaaaaaaaa") {
		t.Error("Oldest content should have been trimmed")
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(100)
	r.AppendLine("content")
	r.Reset()
	if r.String() != "" {
		t.Error("Reset should clear the ring")
	}
}

func TestRing_CapacityMatchesContract(t *testing.T) {
	r := NewRing(stderrRingSize)
	line := strings.Repeat("x", 100)
	for range 50 {
		r.AppendLine(line)
	}
	if len(r.String()) > stderrRingSize {
		t.Errorf("Ring exceeded %d bytes: %d", stderrRingSize, len(r.String()))
	}
}
