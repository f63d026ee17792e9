package streams

import (
	"strings"
	"testing"

	"github.com/smazurov/audionode/internal/codecs"
)

func validCreateParams() CreateParams {
	return CreateParams{
		ID:       "english",
		Name:     "English",
		DeviceID: "usb-mic",
	}
}

func TestNewStream_Defaults(t *testing.T) {
	st, err := newStream(validCreateParams())
	if err != nil {
		t.Fatalf("newStream failed: %v", err)
	}
	if st.BitrateKbps != 192 {
		t.Errorf("BitrateKbps = %d, want 192", st.BitrateKbps)
	}
	if st.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", st.SampleRate)
	}
	if st.Channels != 2 {
		t.Errorf("Channels = %d, want 2", st.Channels)
	}
	if st.Format != codecs.FormatMP3 {
		t.Errorf("Format = %q, want mp3", st.Format)
	}
	if st.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestNewStream_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"empty id", func(p *CreateParams) { p.ID = "" }},
		{"id with slash", func(p *CreateParams) { p.ID = "a/b" }},
		{"id with space", func(p *CreateParams) { p.ID = "my stream" }},
		{"id too long", func(p *CreateParams) { p.ID = strings.Repeat("x", 65) }},
		{"empty name", func(p *CreateParams) { p.Name = "  " }},
		{"no source", func(p *CreateParams) { p.DeviceID = "" }},
		{"both sources", func(p *CreateParams) { p.InputFilePath = "/a.mp3" }},
		{"bitrate low", func(p *CreateParams) { p.BitrateKbps = 16 }},
		{"bitrate high", func(p *CreateParams) { p.BitrateKbps = 512 }},
		{"bad channels", func(p *CreateParams) { p.Channels = 6 }},
		{"bad format", func(p *CreateParams) { p.Format = "flac" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validCreateParams()
			tt.mutate(&p)
			if _, err := newStream(p); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestNewStream_FileInput(t *testing.T) {
	p := validCreateParams()
	p.DeviceID = ""
	p.InputFilePath = "/srv/audio/loop.mp3"

	st, err := newStream(p)
	if err != nil {
		t.Fatalf("newStream failed: %v", err)
	}
	if st.InputFilePath != "/srv/audio/loop.mp3" || st.DeviceID != "" {
		t.Errorf("Source fields = %q/%q", st.DeviceID, st.InputFilePath)
	}
}

func TestApplyUpdate_SourceSwitch(t *testing.T) {
	st, _ := newStream(validCreateParams())

	file := "/srv/audio/loop.mp3"
	updated, err := applyUpdate(st, UpdateParams{InputFilePath: &file})
	if err != nil {
		t.Fatalf("applyUpdate failed: %v", err)
	}
	if updated.DeviceID != "" {
		t.Error("Switching to file input must clear deviceId")
	}

	dev := "other-mic"
	updated, err = applyUpdate(updated, UpdateParams{DeviceID: &dev})
	if err != nil {
		t.Fatalf("applyUpdate failed: %v", err)
	}
	if updated.InputFilePath != "" {
		t.Error("Switching to device input must clear inputFilePath")
	}
	if updated.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestApplyUpdate_Validation(t *testing.T) {
	st, _ := newStream(validCreateParams())

	bad := 1000
	if _, err := applyUpdate(st, UpdateParams{BitrateKbps: &bad}); err == nil {
		t.Error("Out-of-range bitrate must fail")
	}

	empty := ""
	if _, err := applyUpdate(st, UpdateParams{Name: &empty}); err == nil {
		t.Error("Empty name must fail")
	}
}

func TestNormalizedName(t *testing.T) {
	if NormalizedName("  English  ") != "english" {
		t.Errorf("NormalizedName = %q", NormalizedName("  English  "))
	}
}
