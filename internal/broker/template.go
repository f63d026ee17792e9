package broker

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

const defaultBrokerPort = 8000

const configTemplate = `<icecast>
    <location>LAN</location>
    <admin>admin@localhost</admin>

    <limits>
        <clients>100</clients>
        <sources>16</sources>
        <queue-size>524288</queue-size>
        <client-timeout>30</client-timeout>
        <header-timeout>15</header-timeout>
        <source-timeout>10</source-timeout>
        <burst-on-connect>1</burst-on-connect>
        <burst-size>65535</burst-size>
    </limits>

    <authentication>
        <source-password>%s</source-password>
        <relay-password>%s</relay-password>
        <admin-user>admin</admin-user>
        <admin-password>%s</admin-password>
    </authentication>

    <hostname>localhost</hostname>

    <listen-socket>
        <port>%d</port>
    </listen-socket>

    <http-headers>
        <header name="Access-Control-Allow-Origin" value="*" />
    </http-headers>

    <paths>
        <logdir>%s</logdir>
        <webroot>%s</webroot>
        <adminroot>%s</adminroot>
        <alias source="/" destination="/status.xsl"/>
    </paths>

    <logging>
        <accesslog>access.log</accesslog>
        <errorlog>error.log</errorlog>
        <loglevel>3</loglevel>
        <logsize>10000</logsize>
    </logging>
</icecast>
`

// WriteConfigTemplate generates a fresh broker configuration at path.
// Used when a broker executable was found but no config exists yet.
// Passwords are freshly generated, never reused from a previous file.
func WriteConfigTemplate(path string, port int, installDir string) error {
	if port <= 0 {
		port = defaultBrokerPort
	}
	sourcePw, err := randomPassword()
	if err != nil {
		return err
	}
	relayPw, err := randomPassword()
	if err != nil {
		return err
	}
	adminPw, err := randomPassword()
	if err != nil {
		return err
	}

	logDir := filepath.Join(filepath.Dir(path), "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("creating broker log dir: %w", err)
	}

	webRoot := resolveShareDir(filepath.Join(installDir, "web"), "/usr/share/icecast2/web")
	adminRoot := resolveShareDir(filepath.Join(installDir, "admin"), "/usr/share/icecast2/admin")

	content := fmt.Sprintf(configTemplate, sourcePw, relayPw, adminPw, port, logDir, webRoot, adminRoot)
	if err := renameio.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing broker config template: %w", err)
	}
	return nil
}

// resolveShareDir prefers the install-relative asset directory and
// falls back to the distro package location.
func resolveShareDir(preferred, fallback string) string {
	if _, err := os.Stat(preferred); err == nil {
		return preferred
	}
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return preferred
}

func randomPassword() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	for i, b := range buf {
		buf[i] = chars[int(b)%len(chars)]
	}
	return string(buf), nil
}
