package broker

import (
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Config holds the parameters this system reads from the broadcast
// server's XML configuration. The XML file is the source of truth:
// Config is re-populated on every parse and never cached across
// restarts. Passwords in particular live only in memory.
type Config struct {
	Port           int
	Hostname       string
	SourcePassword string
	AdminUser      string
	AdminPassword  string
	MaxListeners   int
	MaxSources     int

	// Log file locations, relative to the <logdir> when not absolute.
	AccessLog string
	ErrorLog  string
}

// xmlConfig mirrors the subset of the Icecast configuration schema we
// care about. Unknown elements are ignored by encoding/xml, which is
// exactly what we want for parsing; edits go through EditConfig so the
// rest of the document survives untouched.
type xmlConfig struct {
	XMLName  xml.Name `xml:"icecast"`
	Hostname string   `xml:"hostname"`
	Limits   struct {
		Clients int `xml:"clients"`
		Sources int `xml:"sources"`
	} `xml:"limits"`
	Authentication struct {
		SourcePassword string `xml:"source-password"`
		AdminUser      string `xml:"admin-user"`
		AdminPassword  string `xml:"admin-password"`
	} `xml:"authentication"`
	ListenSockets []struct {
		Port int `xml:"port"`
	} `xml:"listen-socket"`
	Logging struct {
		AccessLog string `xml:"accesslog"`
		ErrorLog  string `xml:"errorlog"`
	} `xml:"logging"`
}

// ParseConfig decodes the recognized fields from broker XML data.
func ParseConfig(data []byte) (Config, error) {
	var raw xmlConfig
	if err := xml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parsing broker config: %w", err)
	}

	cfg := Config{
		Port:           defaultBrokerPort,
		Hostname:       raw.Hostname,
		SourcePassword: raw.Authentication.SourcePassword,
		AdminUser:      raw.Authentication.AdminUser,
		AdminPassword:  raw.Authentication.AdminPassword,
		MaxListeners:   raw.Limits.Clients,
		MaxSources:     raw.Limits.Sources,
		AccessLog:      raw.Logging.AccessLog,
		ErrorLog:       raw.Logging.ErrorLog,
	}
	if len(raw.ListenSockets) > 0 && raw.ListenSockets[0].Port > 0 {
		cfg.Port = raw.ListenSockets[0].Port
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}
	return cfg, nil
}

// ParseConfigFile reads and parses the broker XML at path.
func ParseConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading broker config: %w", err)
	}
	return ParseConfig(data)
}

// ConfigChanges names the XML fields that configure() may edit.
// Nil pointers leave the existing value in place.
type ConfigChanges struct {
	Port           *int
	Hostname       *string
	SourcePassword *string
	AdminPassword  *string
	MaxListeners   *int
	MaxSources     *int
}

func (c ConfigChanges) empty() bool {
	return c.Port == nil && c.Hostname == nil && c.SourcePassword == nil &&
		c.AdminPassword == nil && c.MaxListeners == nil && c.MaxSources == nil
}

// elementPattern matches a single flat XML element with the given tag,
// capturing open tag, content, and close tag. The broker config keeps
// all the fields we edit on one line each.
func elementPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(<` + tag + `>)([^<]*)(</` + tag + `>)`)
}

func replaceFirst(data []byte, tag, value string) []byte {
	re := elementPattern(tag)
	done := false
	return re.ReplaceAllFunc(data, func(m []byte) []byte {
		if done {
			return m
		}
		done = true
		sub := re.FindSubmatch(m)
		return []byte(string(sub[1]) + value + string(sub[3]))
	})
}

// EditConfig rewrites the requested fields inside the XML document
// using targeted element replacement. Comments, whitespace, and
// elements this system does not understand pass through verbatim, so
// a hand-maintained config survives the edit.
func EditConfig(data []byte, changes ConfigChanges) []byte {
	if changes.Port != nil {
		data = replaceFirst(data, "port", strconv.Itoa(*changes.Port))
	}
	if changes.Hostname != nil {
		data = replaceFirst(data, "hostname", *changes.Hostname)
	}
	if changes.SourcePassword != nil {
		data = replaceFirst(data, "source-password", *changes.SourcePassword)
	}
	if changes.AdminPassword != nil {
		data = replaceFirst(data, "admin-password", *changes.AdminPassword)
	}
	if changes.MaxListeners != nil {
		data = replaceFirst(data, "clients", strconv.Itoa(*changes.MaxListeners))
	}
	if changes.MaxSources != nil {
		data = replaceFirst(data, "sources", strconv.Itoa(*changes.MaxSources))
	}
	return data
}
