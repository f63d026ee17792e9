package devices

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Microphone", "microphone"},
		{"spaces", "HD Pro Webcam C910", "hd-pro-webcam-c910"},
		{"punctuation", "USB Audio Device (2- C-Media)", "usb-audio-device-2-c-media"},
		{"leading junk", "  (Weird) Name", "weird-name"},
		{"empty", "", ""},
		{"only junk", "()!@#", ""},
		{"underscores", "USB_Audio_Device", "usb-audio-device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"parenthesized", "Microphone (HD Pro Webcam C910)", "hd-pro-webcam-c910"},
		{"plain", "Built-in Microphone", "built-in-microphone"},
		{"empty parens", "Microphone ()", "microphone"},
		{"alsa id", "C910", "c910"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveID(tt.in); got != tt.want {
				t.Errorf("DeriveID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	devices := []Device{
		{ID: "a", BackendName: "A", Kind: KindInput, Source: SourceFFmpeg},
		{ID: "a", BackendName: "A", Kind: KindInput, Source: SourceWMI},
		{ID: "a", BackendName: "A", Kind: KindOutput},
		{ID: "b", BackendName: "B", Kind: KindInput},
	}

	got := dedupe(devices)
	if len(got) != 3 {
		t.Fatalf("Expected 3 devices after dedupe, got %d", len(got))
	}
	// First occurrence wins: the ffmpeg-sourced entry survives.
	if got[0].Source != SourceFFmpeg {
		t.Errorf("Expected first occurrence to win, got source %s", got[0].Source)
	}
}

func TestFallbackName(t *testing.T) {
	tests := []struct {
		name    string
		slug    string
		backend Backend
		want    string
		ok      bool
	}{
		{"passthrough parenthesized", "Microphone (USB Audio)", BackendALSAOrPulse, "Microphone (USB Audio)", true},
		{"directshow wrap", "hd-pro-webcam-c910", BackendDirectShow, "Microphone (Hd Pro Webcam C910)", true},
		{"alsa no guess", "usb-audio", BackendALSAOrPulse, "", false},
		{"avfoundation no guess", "built-in", BackendAVFoundation, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fallbackName(tt.slug, tt.backend)
			if ok != tt.ok || got != tt.want {
				t.Errorf("fallbackName(%q, %s) = (%q, %v), want (%q, %v)",
					tt.slug, tt.backend, got, ok, tt.want, tt.ok)
			}
		})
	}
}
