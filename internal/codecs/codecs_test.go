package codecs

import (
	"path/filepath"
	"testing"
)

func TestLookup(t *testing.T) {
	c, ok := Lookup(FormatMP3)
	if !ok {
		t.Fatal("Expected mp3 codec in registry")
	}
	if c.Encoder != "libmp3lame" {
		t.Errorf("Expected libmp3lame, got %s", c.Encoder)
	}
	if c.ContentType != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %s", c.ContentType)
	}

	if _, ok := Lookup(Format("flac")); ok {
		t.Error("Expected flac to be absent from registry")
	}
}

func TestCascadeFrom(t *testing.T) {
	tests := []struct {
		preferred Format
		want      []Format
	}{
		{FormatMP3, []Format{FormatMP3, FormatAAC, FormatOGG}},
		{FormatAAC, []Format{FormatAAC, FormatOGG, FormatMP3}},
		{FormatOGG, []Format{FormatOGG, FormatMP3, FormatAAC}},
		{Format("bogus"), []Format{FormatMP3, FormatAAC, FormatOGG}},
	}

	for _, tt := range tests {
		t.Run(string(tt.preferred), func(t *testing.T) {
			got := CascadeFrom(tt.preferred)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d codecs, got %d", len(tt.want), len(got))
			}
			for i, f := range tt.want {
				if got[i].Format != f {
					t.Errorf("Position %d: expected %s, got %s", i, f, got[i].Format)
				}
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMP3, false},
		{"mp3", FormatMP3, false},
		{"MP3", FormatMP3, false},
		{" aac ", FormatAAC, false},
		{"ogg", FormatOGG, false},
		{"vorbis", FormatOGG, false},
		{"flac", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestSelector_FiltersFailedEncoders(t *testing.T) {
	results := &ValidationResults{
		Working: []string{"aac", "libvorbis"},
		Failed:  []string{"libmp3lame"},
	}

	cascade := NewSelector(results).Cascade(FormatMP3)
	if len(cascade) != 2 {
		t.Fatalf("Expected 2 codecs, got %d", len(cascade))
	}
	if cascade[0].Format != FormatAAC || cascade[1].Format != FormatOGG {
		t.Errorf("Unexpected cascade order: %v", cascade)
	}
}

func TestSelector_NilValidationKeepsFullCascade(t *testing.T) {
	cascade := NewSelector(nil).Cascade(FormatAAC)
	if len(cascade) != 3 {
		t.Fatalf("Expected full cascade, got %d codecs", len(cascade))
	}
}

func TestSelector_AllFailedKeepsFullCascade(t *testing.T) {
	results := &ValidationResults{
		Working: []string{},
		Failed:  []string{"libmp3lame", "aac", "libvorbis"},
	}
	cascade := NewSelector(results).Cascade(FormatMP3)
	if len(cascade) != 3 {
		t.Fatalf("Filtering to nothing should fall back to the full cascade, got %d", len(cascade))
	}
}

func TestValidationResults_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ValidationFile)

	in := &ValidationResults{
		Timestamp:     "2025-01-27T10:30:00Z",
		FFmpegVersion: "7.1.1",
		Working:       []string{"libmp3lame", "aac"},
		Failed:        []string{"libvorbis"},
	}
	if err := SaveResults(path, in); err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}

	out, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults failed: %v", err)
	}
	if out.FFmpegVersion != in.FFmpegVersion {
		t.Errorf("Expected version %s, got %s", in.FFmpegVersion, out.FFmpegVersion)
	}
	if len(out.Working) != 2 || out.Working[0] != "libmp3lame" {
		t.Errorf("Unexpected working set: %v", out.Working)
	}
}

func TestLoadResults_Missing(t *testing.T) {
	out, err := LoadResults(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Missing file should not error, got %v", err)
	}
	if out != nil {
		t.Error("Missing file should yield nil results")
	}
}

func TestIsWorking_EmptyResultsPermissive(t *testing.T) {
	var r *ValidationResults
	if !r.IsWorking("libmp3lame") {
		t.Error("Nil results should treat every encoder as usable")
	}

	empty := &ValidationResults{}
	if !empty.IsWorking("aac") {
		t.Error("Empty results should treat every encoder as usable")
	}

	probed := &ValidationResults{Working: []string{"aac"}, Failed: []string{"libmp3lame"}}
	if probed.IsWorking("libmp3lame") {
		t.Error("Failed encoder should not be working")
	}
	if !probed.IsWorking("aac") {
		t.Error("Working encoder should be working")
	}
}
