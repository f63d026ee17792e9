package diagnose

import (
	"fmt"
	"math"
	"strings"
)

// NormalizeExitCode folds Windows unsigned 32-bit exit codes into their
// signed two's-complement form. POSIX codes pass through unchanged.
func NormalizeExitCode(code int) int {
	if code > math.MaxInt32 {
		return int(int32(uint32(code)))
	}
	return code
}

// knownExitCodes maps normalized exit codes to categories. Consulted
// before any stderr matching.
var knownExitCodes = map[int32]Category{
	// 4294967291: access denied or connection refused
	-5: CategoryConnection,
	// 0xA7A7CA08 and 0xA7F00008: encoder crash signatures seen on
	// Windows boxes with broken audio driver stacks
	-1482175992: CategoryWindowsCrash,
	-1477443576: CategoryWindowsCrash,
	// 0xC0000005: access violation
	-1073741819: CategoryWindowsCrash,
	// 0xC0000135: missing DLL
	-1073741515: CategoryWindowsCrash,
}

// rule binds one category to the stderr substrings that indicate it.
type rule struct {
	category Category
	patterns []string
}

// rules are evaluated top to bottom against the lowercased stderr; the
// first pattern hit wins. Order matters: specific phrasings must come
// before generic ones, so extend this table in place rather than
// appending.
var rules = []rule{
	{CategoryDeviceNotFound, []string{
		"could not find audio only device",
		"could not find audio device",
		"audio device not found",
		"no such device",
		"cannot find card",
		"no such file or directory: 'audio=",
	}},
	{CategoryDeviceBusy, []string{
		"device or resource busy",
		"resource busy",
		"being used by another",
		"could not run filter graph",
		"exclusive mode",
	}},
	{CategoryVirtualAudio, []string{
		"vb-audio",
		"voicemeeter",
		"cable output",
		"virtual audio",
	}},
	{CategoryBackendEnum, []string{
		"could not enumerate audio",
		"error enumerating",
		"could not initialize directshow",
		"no audio capture devices",
		"could not create capture graph",
	}},
	{CategoryCodecMissing, []string{
		"unknown encoder",
		"encoder not found",
		"no codec could be found",
		"codec not currently supported",
	}},
	{CategoryFormatUnsupported, []string{
		"unsupported sample format",
		"invalid sample rate",
		"unsupported audio format",
		"channel layout not supported",
		"incorrect codec parameters",
	}},
	{CategoryAuth, []string{
		"401 unauthorized",
		"authentication failed",
		"invalid password",
		"wrong password",
		"403 forbidden",
	}},
	{CategoryMountInUse, []string{
		"mountpoint in use",
		"mount in use",
		"mountpoint taken",
		"source already connected",
	}},
	{CategorySourceLimit, []string{
		"too many sources",
		"source limit",
		"maximum sources",
	}},
	{CategoryPortConflict, []string{
		"address already in use",
		"bind failed",
		"could not bind",
	}},
	{CategoryConnection, []string{
		"connection refused",
		"connection reset",
		"could not connect",
		"failed to connect",
		"network is unreachable",
		"no route to host",
		"end of file",
	}},
	{CategoryResource, []string{
		"cannot allocate memory",
		"out of memory",
		"not enough memory",
		"memory allocation",
	}},
	{CategoryTimeout, []string{
		"timed out",
		"timeout",
	}},
}

// maxDetailStderr bounds how much stderr a diagnosis carries.
const maxDetailStderr = 600

// Classify converts an encoder failure into exactly one Diagnosis.
// The stderr is matched case-insensitively; the exit code is normalized
// first so Windows unsigned codes and POSIX codes share one table.
func Classify(stderr string, exitCode int, ctx Context) Diagnosis {
	code := NormalizeExitCode(exitCode)

	if cat, ok := knownExitCodes[int32(code)]; ok {
		return produce(cat, code, stderr, ctx)
	}

	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return genericDiagnosis(code, "", ctx)
	}

	lowered := strings.ToLower(trimmed)
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(lowered, p) {
				return produce(r.category, code, trimmed, ctx)
			}
		}
	}

	return genericDiagnosis(code, trimmed, ctx)
}

// tail bounds stderr for embedding into TechnicalDetails.
func tail(s string) string {
	if len(s) <= maxDetailStderr {
		return s
	}
	return s[len(s)-maxDetailStderr:]
}

// produce dispatches to the category's builder.
func produce(cat Category, code int, stderr string, ctx Context) Diagnosis {
	details := ctx.details(code, tail(stderr))

	switch cat {
	case CategoryWindowsCrash:
		return windowsCrash(details)
	case CategoryDeviceNotFound:
		return deviceNotFound(details, ctx)
	case CategoryDeviceBusy:
		return deviceBusy(details, ctx)
	case CategoryVirtualAudio:
		return virtualAudio(details)
	case CategoryBackendEnum:
		return backendEnum(details, ctx)
	case CategoryCodecMissing:
		return codecMissing(details)
	case CategoryFormatUnsupported:
		return formatUnsupported(details)
	case CategoryAuth:
		return authFailure(details, ctx)
	case CategoryMountInUse:
		return mountInUse(details, ctx)
	case CategorySourceLimit:
		return sourceLimit(details)
	case CategoryPortConflict:
		return portConflict(details, ctx)
	case CategoryConnection:
		return connectionFailure(details, ctx)
	case CategoryResource:
		return resourceFailure(details)
	case CategoryTimeout:
		return timeoutFailure(details)
	default:
		return genericDiagnosis(code, stderr, ctx)
	}
}

func windowsCrash(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryWindowsCrash,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Encoder crashed (Windows)"),
		Description: "The encoder process crashed with a Windows error code that indicates a fault inside the encoder or an audio driver, not a configuration mistake.",
		Causes: []string{
			"Corrupted encoder installation",
			"Faulty or outdated audio driver",
			"Antivirus interfering with the encoder process",
		},
		Solutions: []string{
			"Reinstall the encoder (ffmpeg) from a clean download",
			"Update the audio device drivers",
			"Add an antivirus exception for the encoder executable",
			"Reboot the machine to reset the audio stack",
		},
		TechnicalDetails: details,
	}
}

func deviceNotFound(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryDeviceNotFound,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Audio device not found"),
		Description: fmt.Sprintf("The capture backend could not locate the device %q. It may have been unplugged, renamed, or disabled.", ctx.DeviceName),
		Causes: []string{
			"Device was unplugged or disabled in the OS",
			"Device name changed after a driver update",
		},
		Solutions: []string{
			"Refresh the device list and reselect the device",
			"Check the OS sound settings for the device",
			"Reconnect the device and retry",
		},
		TechnicalDetails: details,
	}
}

func deviceBusy(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryDeviceBusy,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Audio device is busy"),
		Description: fmt.Sprintf("Another application holds exclusive access to %q, so the encoder cannot open it.", ctx.DeviceName),
		Causes: []string{
			"A conferencing or recording app has exclusive access",
			"Another encoder instance is already capturing",
		},
		Solutions: []string{
			"Close other applications using the device",
			"Disable exclusive mode in the OS sound settings",
			"Retry after the device is released",
		},
		TechnicalDetails: details,
	}
}

func virtualAudio(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryVirtualAudio,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Virtual audio driver problem"),
		Description: "A virtual-audio driver (VB-Audio Cable, VoiceMeeter) is involved in this capture and appears to be misbehaving.",
		Causes: []string{
			"Virtual-audio driver not running",
			"Sample rate mismatch between the virtual device and the encoder",
		},
		Solutions: []string{
			"Restart the virtual-audio engine (VoiceMeeter: Menu, Restart Audio Engine)",
			"Match the virtual cable sample rate to the stream sample rate",
			"Reinstall the virtual-audio driver",
		},
		TechnicalDetails: details,
	}
}

func backendEnum(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryBackendEnum,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Audio subsystem failure"),
		Description: fmt.Sprintf("The %s capture subsystem failed before any device could be opened.", ctx.Backend),
		Causes: []string{
			"Audio service not running",
			"Broken driver installation",
		},
		Solutions: []string{
			"Restart the system audio service",
			"Reinstall the audio drivers",
			"Reboot the machine",
		},
		TechnicalDetails: details,
	}
}

func codecMissing(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryCodecMissing,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Encoder codec missing"),
		Description: "The installed encoder build lacks the codec library this stream's format requires.",
		Causes: []string{
			"Encoder built without the codec (e.g. no libmp3lame)",
			"Minimal encoder package installed",
		},
		Solutions: []string{
			"Install a full encoder build with MP3, AAC and OGG support",
			"Switch the stream to a format the encoder supports",
		},
		TechnicalDetails: details,
	}
}

func formatUnsupported(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryFormatUnsupported,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Audio format not supported"),
		Description: "The requested sample rate, channel layout or output format is not supported by the device or codec.",
		Causes: []string{
			"Device cannot capture at the configured sample rate",
			"Channel count exceeds what the device provides",
		},
		Solutions: []string{
			"Set the sample rate to 44100 Hz",
			"Reduce the channel count to mono",
			"Pick a different output format",
		},
		TechnicalDetails: details,
	}
}

func authFailure(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryAuth,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Broadcast server rejected credentials"),
		Description: "The broadcast server refused the encoder's source password. The password in the server XML no longer matches what the encoder sent.",
		Causes: []string{
			"Source password changed in the server config",
			"Server config was replaced or regenerated",
		},
		Solutions: []string{
			"Restart this controller so it re-reads the server config",
			"Verify the source password in the server XML",
		},
		TechnicalDetails: details,
	}
}

func mountInUse(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryMountInUse,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Mount point already in use"),
		Description: fmt.Sprintf("The broadcast server already has a source connected at /%s. Only one source may feed a mount.", ctx.StreamID),
		Causes: []string{
			"A previous encoder for this stream is still connected",
			"Another tool is feeding the same mount name",
		},
		Solutions: []string{
			"Wait a few seconds for the stale source to disconnect",
			"Restart the broadcast server to drop stale sources",
		},
		TechnicalDetails: details,
	}
}

func sourceLimit(details string) Diagnosis {
	return Diagnosis{
		Category:    CategorySourceLimit,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Broadcast server source limit reached"),
		Description: "The broadcast server refused a new source because its configured source cap is exhausted.",
		Causes: []string{
			"More streams running than the server allows",
		},
		Solutions: []string{
			"Raise the source limit in the server settings",
			"Stop an unused stream",
		},
		TechnicalDetails: details,
	}
}

func portConflict(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryPortConflict,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Port already in use"),
		Description: fmt.Sprintf("Port %d is already bound by another process, so the server or encoder could not listen.", ctx.BrokerPort),
		Causes: []string{
			"A second broadcast server instance is running",
			"Another service occupies the port",
		},
		Solutions: []string{
			"Stop the other process using the port",
			"Change the server port in its XML config",
		},
		TechnicalDetails: details,
	}
}

func connectionFailure(details string, ctx Context) Diagnosis {
	return Diagnosis{
		Category:    CategoryConnection,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "Cannot reach broadcast server"),
		Description: fmt.Sprintf("The encoder could not connect to the broadcast server on localhost:%d. The connection was refused or denied.", ctx.BrokerPort),
		Causes: []string{
			"Broadcast server is not running",
			"A firewall blocks local connections to the server port",
		},
		Solutions: []string{
			"Start the broadcast server and retry",
			"Allow the encoder through the firewall",
			"Verify the server port in its XML config",
		},
		TechnicalDetails: details,
	}
}

func resourceFailure(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryResource,
		Severity:    SeverityCritical,
		Title:       title(SeverityCritical, "System out of resources"),
		Description: "The encoder could not allocate the memory it needs.",
		Causes: []string{
			"System memory exhausted",
			"Too many concurrent streams for this machine",
		},
		Solutions: []string{
			"Stop unused streams",
			"Close other applications",
			"Add memory or move to a larger machine",
		},
		TechnicalDetails: details,
	}
}

func timeoutFailure(details string) Diagnosis {
	return Diagnosis{
		Category:    CategoryTimeout,
		Severity:    SeverityWarning,
		Title:       title(SeverityWarning, "Operation timed out"),
		Description: "The encoder gave up waiting on an I/O operation. The device or the broadcast server did not respond in time.",
		Causes: []string{
			"Capture device stopped delivering samples",
			"Broadcast server is overloaded",
		},
		Solutions: []string{
			"Restart the stream",
			"Check the device connection",
		},
		TechnicalDetails: details,
	}
}

// genericDiagnosis covers everything the table does not. Severity is
// info for a clean exit, warning otherwise.
func genericDiagnosis(code int, stderr string, ctx Context) Diagnosis {
	sev := SeverityWarning
	desc := fmt.Sprintf("The encoder exited with code %d and no recognizable failure signature.", code)
	if code == 0 {
		sev = SeverityInfo
		desc = "The encoder exited normally without being asked to stop."
	}
	return Diagnosis{
		Category:         CategoryGeneric,
		Severity:         sev,
		Title:            title(sev, "Stream stopped unexpectedly"),
		Description:      desc,
		Causes:           []string{"Unrecognized encoder failure"},
		Solutions:        []string{"Restart the stream", "Inspect the technical details below"},
		TechnicalDetails: ctx.details(code, tail(stderr)),
	}
}
