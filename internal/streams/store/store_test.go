package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/smazurov/audionode/internal/codecs"
)

func testStream(id, name string) Stream {
	return Stream{
		ID:          id,
		Name:        name,
		DeviceID:    "usb-mic",
		BitrateKbps: 192,
		Format:      codecs.FormatMP3,
		SampleRate:  44100,
		Channels:    2,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), DefaultFile))
}

func TestStore_PutGetList(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(testStream("english", "English")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testStream("spanish", "Spanish")); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get("english")
	if !ok || got.Name != "English" {
		t.Errorf("Get = %+v, %v", got, ok)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d streams", len(list))
	}
	if list[0].ID != "english" || list[0].Position != 0 {
		t.Errorf("First stream = %s pos %d", list[0].ID, list[0].Position)
	}
	if list[1].ID != "spanish" || list[1].Position != 1 {
		t.Errorf("Second stream = %s pos %d", list[1].ID, list[1].Position)
	}
}

func TestStore_LoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)

	s := New(path)
	if err := s.Put(testStream("english", "English")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testStream("spanish", "Spanish")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOrder([]string{"spanish", "english"}); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	list := reloaded.List()
	if len(list) != 2 || list[0].ID != "spanish" || list[1].ID != "english" {
		t.Errorf("Order lost on reload: %+v", list)
	}
	if list[0].BitrateKbps != 192 || list[0].Format != codecs.FormatMP3 {
		t.Errorf("Fields lost on reload: %+v", list[0])
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("Missing file must not error: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestStore_PreservesUnknownReservedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)

	doc := map[string]any{
		"_version": 1,
		"_order":   []string{"english"},
		"_futureFeature": map[string]any{
			"enabled": true,
		},
		"english": testStream("english", "English"),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testStream("spanish", "Spanish")); err != nil {
		t.Fatal(err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(written, &out); err != nil {
		t.Fatal(err)
	}
	if _, ok := out["_futureFeature"]; !ok {
		t.Error("Unknown reserved key dropped on save")
	}
}

func TestStore_LoadDerivesOrderFromPositions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)

	a := testStream("alpha", "Alpha")
	a.Position = 2
	b := testStream("beta", "Beta")
	b.Position = 0

	doc := map[string]any{"_version": 1, "alpha": a, "beta": b}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "beta" || list[1].ID != "alpha" {
		t.Errorf("Derived order wrong: %+v", list)
	}
	if list[0].Position != 0 || list[1].Position != 1 {
		t.Errorf("Positions not compacted: %+v", list)
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(testStream(id, id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Remove("b"); err != nil {
		t.Fatal(err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("List after remove = %+v", list)
	}
	if list[1].Position != 1 {
		t.Errorf("Positions not compacted after remove: %+v", list)
	}

	// Removing a missing stream is a no-op.
	if err := s.Remove("b"); err != nil {
		t.Errorf("Second remove errored: %v", err)
	}
}

func TestStore_SetOrderValidation(t *testing.T) {
	s := newTestStore(t)
	s.Put(testStream("a", "A"))
	s.Put(testStream("b", "B"))

	if err := s.SetOrder([]string{"a"}); err == nil {
		t.Error("Short order list must fail")
	}
	if err := s.SetOrder([]string{"a", "x"}); err == nil {
		t.Error("Unknown id must fail")
	}
	if err := s.SetOrder([]string{"a", "a"}); err == nil {
		t.Error("Duplicate id must fail")
	}
	if err := s.SetOrder([]string{"b", "a"}); err != nil {
		t.Errorf("Valid order failed: %v", err)
	}
}
