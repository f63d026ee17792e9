package broker

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/smazurov/audionode/internal/diagnose"
)

// InstallSource records which detection strategy located the broker.
type InstallSource string

const (
	SourceEnv    InstallSource = "env"
	SourceSystem InstallSource = "system-path"
	SourcePATH   InstallSource = "path-lookup"
	SourceCustom InstallSource = "custom"
)

// Installation is a located broker executable plus its config file.
type Installation struct {
	ExePath    string
	ConfigPath string
	Source     InstallSource
}

// NotFoundError reports that no detection strategy located a broker.
type NotFoundError struct {
	Searched  []string
	Diagnosis diagnose.Diagnosis
}

func (e *NotFoundError) Error() string {
	return "broker installation not found"
}

func systemExePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files (x86)\Icecast\bin\icecast.exe`,
			`C:\Program Files\Icecast\bin\icecast.exe`,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin/icecast",
			"/usr/local/bin/icecast",
		}
	default:
		return []string{
			"/usr/bin/icecast2",
			"/usr/bin/icecast",
			"/usr/local/bin/icecast",
		}
	}
}

func systemConfigPaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files (x86)\Icecast\icecast.xml`,
			`C:\Program Files\Icecast\icecast.xml`,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/etc/icecast.xml",
			"/usr/local/etc/icecast.xml",
		}
	default:
		return []string{
			"/etc/icecast2/icecast.xml",
			"/etc/icecast.xml",
		}
	}
}

func pathLookupNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"icecast.exe", "icecast"}
	}
	return []string{"icecast2", "icecast"}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Detect locates the broker installation. Strategies run in priority
// order: environment overrides, well-known platform paths, PATH lookup,
// then a previously recorded custom path from the device-config cache.
// A found executable without a usable config gets one under dataDir
// (the template is generated lazily at start time).
func Detect(dataDir string, cached *DeviceConfig) (Installation, error) {
	var searched []string

	// 1. Environment overrides win unconditionally.
	if exe := os.Getenv("BROKER_EXE_PATH"); exe != "" {
		inst := Installation{ExePath: exe, Source: SourceEnv}
		if cfg := os.Getenv("BROKER_CONFIG_PATH"); cfg != "" {
			inst.ConfigPath = cfg
		} else {
			inst.ConfigPath = defaultConfigPath(exe, dataDir)
		}
		return inst, nil
	}

	// 2. Standard platform locations.
	for _, exe := range systemExePaths() {
		searched = append(searched, exe)
		if fileExists(exe) {
			return Installation{
				ExePath:    exe,
				ConfigPath: defaultConfigPath(exe, dataDir),
				Source:     SourceSystem,
			}, nil
		}
	}

	// 3. Executable on PATH.
	for _, name := range pathLookupNames() {
		if exe, err := exec.LookPath(name); err == nil {
			return Installation{
				ExePath:    exe,
				ConfigPath: defaultConfigPath(exe, dataDir),
				Source:     SourcePATH,
			}, nil
		}
		searched = append(searched, name+" (PATH)")
	}

	// 4. A custom path the user recorded earlier.
	if cached != nil && cached.BrokerExePath != "" {
		searched = append(searched, cached.BrokerExePath)
		if fileExists(cached.BrokerExePath) {
			inst := Installation{
				ExePath:    cached.BrokerExePath,
				ConfigPath: cached.BrokerConfigPath,
				Source:     SourceCustom,
			}
			if inst.ConfigPath == "" {
				inst.ConfigPath = defaultConfigPath(inst.ExePath, dataDir)
			}
			return inst, nil
		}
	}

	return Installation{}, &NotFoundError{
		Searched:  searched,
		Diagnosis: diagnose.NewInstallationNotFound(searched),
	}
}

// defaultConfigPath picks the config file that pairs with an exe: the
// platform's standard config if one exists on disk, otherwise a file in
// our data directory that start() will populate from the template.
func defaultConfigPath(exePath, dataDir string) string {
	if env := os.Getenv("BROKER_CONFIG_PATH"); env != "" {
		return env
	}
	for _, cfg := range systemConfigPaths() {
		if fileExists(cfg) {
			return cfg
		}
	}
	// Windows installs keep icecast.xml next to bin\.
	if runtime.GOOS == "windows" {
		candidate := filepath.Join(filepath.Dir(filepath.Dir(exePath)), "icecast.xml")
		if fileExists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dataDir, "icecast.xml")
}
