package broker

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

const statsTimeout = 3 * time.Second

// Stats is the subset of the broker's admin stats we surface.
type Stats struct {
	ServerStart string  `json:"serverStart,omitempty"`
	Listeners   int     `json:"listeners"`
	Sources     int     `json:"sources"`
	Mounts      []Mount `json:"mounts,omitempty"`
}

// Mount describes one active source mount on the broker.
type Mount struct {
	Name        string `json:"name"`
	Listeners   int    `json:"listeners"`
	ContentType string `json:"contentType,omitempty"`
}

type xmlStats struct {
	XMLName     xml.Name `xml:"icestats"`
	ServerStart string   `xml:"server_start_iso8601"`
	Listeners   int      `xml:"listeners"`
	Sources     int      `xml:"sources"`
	SourceList  []struct {
		Mount       string `xml:"mount,attr"`
		Listeners   int    `xml:"listeners"`
		ContentType string `xml:"server_type"`
	} `xml:"source"`
}

// StatsClient queries the broker's admin HTTP interface. Credentials
// come from the parsed XML config and are supplied per call so a
// config reload takes effect immediately.
type StatsClient struct {
	httpClient *http.Client
}

// NewStatsClient creates a stats client with the standard short timeout.
func NewStatsClient() *StatsClient {
	return &StatsClient{
		httpClient: &http.Client{Timeout: statsTimeout},
	}
}

func (c *StatsClient) fetch(ctx context.Context, cfg Config, path string) ([]byte, error) {
	url := fmt.Sprintf("http://localhost:%d%s", cfg.Port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(cfg.AdminUser, cfg.AdminPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker admin returned status %d for %s", resp.StatusCode, path)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// GetStats fetches and decodes /admin/stats.xml.
func (c *StatsClient) GetStats(ctx context.Context, cfg Config) (Stats, error) {
	data, err := c.fetch(ctx, cfg, "/admin/stats.xml")
	if err != nil {
		return Stats{}, err
	}
	var raw xmlStats
	if err := xml.Unmarshal(data, &raw); err != nil {
		return Stats{}, fmt.Errorf("parsing broker stats: %w", err)
	}

	stats := Stats{
		ServerStart: raw.ServerStart,
		Listeners:   raw.Listeners,
		Sources:     raw.Sources,
	}
	for _, s := range raw.SourceList {
		stats.Mounts = append(stats.Mounts, Mount{
			Name:        s.Mount,
			Listeners:   s.Listeners,
			ContentType: s.ContentType,
		})
	}
	return stats, nil
}

// ListMounts fetches /admin/listmounts.xml, the cheaper endpoint when
// only the active mount set is needed.
func (c *StatsClient) ListMounts(ctx context.Context, cfg Config) ([]Mount, error) {
	data, err := c.fetch(ctx, cfg, "/admin/listmounts.xml")
	if err != nil {
		return nil, err
	}
	var raw xmlStats
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing mount list: %w", err)
	}
	mounts := make([]Mount, 0, len(raw.SourceList))
	for _, s := range raw.SourceList {
		mounts = append(mounts, Mount{Name: s.Mount, Listeners: s.Listeners})
	}
	return mounts, nil
}

// Ping reports whether the broker's admin interface answers at all.
// Any HTTP response counts, including auth failures: reachability is
// the question, not credentials.
func (c *StatsClient) Ping(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d/admin/stats.xml", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
