// Package diagnose converts encoder and broker failures into structured,
// presentation-ready diagnoses. A Diagnosis is an immutable value: for
// identical inputs the classifier produces byte-identical output, so it
// never embeds timestamps or random identifiers.
package diagnose

import "fmt"

// Severity grades how urgently a diagnosis needs operator attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category identifies the failure class. The set is closed; UI styling
// and HTTP status mapping key off these values.
type Category string

const (
	CategoryWindowsCrash      Category = "windows-crash"
	CategoryDeviceNotFound    Category = "device-not-found"
	CategoryDeviceBusy        Category = "device-busy"
	CategoryVirtualAudio      Category = "virtual-audio"
	CategoryBackendEnum       Category = "backend-enumeration"
	CategoryCodecMissing      Category = "codec-missing"
	CategoryFormatUnsupported Category = "format-unsupported"
	CategoryAuth              Category = "auth"
	CategoryMountInUse        Category = "mount-in-use"
	CategorySourceLimit       Category = "source-limit"
	CategoryPortConflict      Category = "port-conflict"
	CategoryConnection        Category = "connection"
	CategoryResource          Category = "resource"
	CategoryTimeout           Category = "timeout"
	CategoryGeneric           Category = "generic"

	// Raised by managers directly, not by the stderr classifier.
	CategoryDeviceConflict    Category = "device-conflict"
	CategoryBrokerUnavailable Category = "broker-unavailable"
	CategoryDuplicate         Category = "duplicate"
	CategoryInstallation      Category = "installation"
	CategoryDeviceNotMapped   Category = "device-not-mapped"
)

// Glyphs prefixed to titles, by severity.
const (
	glyphCritical = "✗"
	glyphWarning  = "⚠"
	glyphInfo     = "ℹ"
)

// Diagnosis is the classifier's output: a structured description of one
// failure, ready for an admin UI toast or detail pane.
type Diagnosis struct {
	Category         Category `json:"category"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Causes           []string `json:"causes,omitempty"`
	Solutions        []string `json:"solutions,omitempty"`
	TechnicalDetails string   `json:"technicalDetails,omitempty"`
	Severity         Severity `json:"severity"`
}

// Short returns a copy trimmed for toast notifications: at most two
// causes and three solutions.
func (d Diagnosis) Short() Diagnosis {
	out := d
	if len(out.Causes) > 2 {
		out.Causes = out.Causes[:2]
	}
	if len(out.Solutions) > 3 {
		out.Solutions = out.Solutions[:3]
	}
	return out
}

// glyph returns the title prefix for a severity.
func glyph(s Severity) string {
	switch s {
	case SeverityCritical:
		return glyphCritical
	case SeverityWarning:
		return glyphWarning
	default:
		return glyphInfo
	}
}

// title builds a glyph-prefixed title.
func title(s Severity, text string) string {
	return glyph(s) + " " + text
}

// Context carries the runtime facts each producer embeds into
// TechnicalDetails so a diagnosis can be read without the original logs.
type Context struct {
	StreamID   string
	DeviceID   string
	DeviceName string
	Backend    string
	BrokerPort int
}

// details renders the context plus exit information deterministically.
func (c Context) details(exitCode int, stderrTail string) string {
	s := fmt.Sprintf("stream=%s device=%s (%s) backend=%s broker_port=%d exit_code=%d",
		c.StreamID, c.DeviceID, c.DeviceName, c.Backend, c.BrokerPort, exitCode)
	if stderrTail != "" {
		s += "\nstderr: " + stderrTail
	}
	return s
}

// NewDeviceConflict reports that another stream already holds the device.
func NewDeviceConflict(deviceID, otherStreamID string) Diagnosis {
	return Diagnosis{
		Category:    CategoryDeviceConflict,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Device already in use by: "+otherStreamID),
		Description: fmt.Sprintf("The audio device %q is already captured by stream %q. A capture device can feed only one encoder at a time.", deviceID, otherStreamID),
		Causes: []string{
			"Another stream on this device is starting or running",
		},
		Solutions: []string{
			fmt.Sprintf("Stop stream %q first", otherStreamID),
			"Assign this stream a different capture device",
		},
		TechnicalDetails: fmt.Sprintf("device=%s held_by=%s", deviceID, otherStreamID),
	}
}

// NewBrokerUnavailable reports that the broker is not accepting sources.
func NewBrokerUnavailable() Diagnosis {
	return Diagnosis{
		Category:    CategoryBrokerUnavailable,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Broadcast server is not running"),
		Description: "The broadcast server must be running before any stream can start. Encoders push audio into the server, which listeners connect to.",
		Causes: []string{
			"The broadcast server was never started",
			"The server crashed or was stopped manually",
		},
		Solutions: []string{
			"Start the broadcast server from the dashboard",
			"Check the server status panel for details",
		},
	}
}

// NewDuplicateName reports a name collision. Duplicate errors carry no
// solutions list; the UI shows a plain modal instead of a troubleshooter.
func NewDuplicateName(name string) Diagnosis {
	return Diagnosis{
		Category:    CategoryDuplicate,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Name already taken"),
		Description: fmt.Sprintf("A stream named %q already exists. Stream names must be unique (case and surrounding spaces are ignored).", name),
	}
}

// NewDuplicateID reports a stream id collision.
func NewDuplicateID(id string) Diagnosis {
	return Diagnosis{
		Category:    CategoryDuplicate,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Stream id already taken"),
		Description: fmt.Sprintf("A stream with id %q already exists.", id),
	}
}

// NewInstallationNotFound reports that the broker binary could not be located.
func NewInstallationNotFound(searched []string) Diagnosis {
	d := Diagnosis{
		Category:    CategoryInstallation,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Broadcast server not installed"),
		Description: "No broadcast server executable was found. Install it or point BROKER_EXE_PATH at an existing installation.",
		Causes: []string{
			"The server software is not installed",
			"It is installed in a non-standard location",
		},
		Solutions: []string{
			"Install the broadcast server package",
			"Set BROKER_EXE_PATH to the server executable",
			"Set BROKER_CONFIG_PATH to the server XML config",
		},
	}
	for _, p := range searched {
		d.TechnicalDetails += "searched: " + p + "\n"
	}
	return d
}

// NewDeviceNotMapped reports that a stream's device slug has no backend name.
func NewDeviceNotMapped(deviceID, backend string) Diagnosis {
	return Diagnosis{
		Category:    CategoryDeviceNotMapped,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Audio device not recognized"),
		Description: fmt.Sprintf("The device %q is not present in the current device list, so no %s capture name could be resolved for it.", deviceID, backend),
		Causes: []string{
			"The device was unplugged or disabled",
			"The device was renamed by the operating system",
		},
		Solutions: []string{
			"Refresh the device list and pick the device again",
			"Reconnect the device and retry",
		},
		TechnicalDetails: fmt.Sprintf("device=%s backend=%s", deviceID, backend),
	}
}

// NewEnumerationFailure reports that device discovery yielded nothing.
// An empty device list is an error, never silently returned: a healthy
// machine always exposes at least one input or a clear driver fault.
func NewEnumerationFailure(backend string, cause error) Diagnosis {
	d := Diagnosis{
		Category:    CategoryBackendEnum,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "No audio devices found"),
		Description: fmt.Sprintf("Device discovery via %s returned no capture devices. This usually points at a broken audio driver rather than an unplugged microphone.", backend),
		Causes: []string{
			"Audio drivers are missing or failed to load",
			"A virtual-audio driver is installed but broken",
			"The encoder binary cannot access the audio subsystem",
		},
		Solutions: []string{
			"Reinstall or update the audio drivers",
			"If a virtual-audio device (VB-Audio, VoiceMeeter) is installed, reinstall it",
			"Verify the encoder binary runs from a terminal",
		},
		TechnicalDetails: "backend=" + backend,
	}
	if cause != nil {
		d.TechnicalDetails += "\nerror: " + cause.Error()
	}
	return d
}
