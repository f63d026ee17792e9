package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/smazurov/audionode/internal/logging"
)

// publicPrefixes are the listener-surface paths LAN clients may GET.
// Everything else is admin territory.
var publicPrefixes = []string{
	"/listen/",
	"/assets/",
	"/api/streams/status",
	"/api/system/config",
	"/api/health",
}

// publicExact are whitelisted without prefix matching.
var publicExact = map[string]bool{
	"/":        true,
	"/streams": true,
	"/contact": true,
}

// AdminGuard enforces network-origin access control: loopback clients
// get everything, LAN clients get read-only listener routes, and a
// request from this very host addressed via its LAN IP is redirected
// to localhost so the admin panel works from any local browser URL.
type AdminGuard struct {
	next   http.Handler
	port   int
	logger interface {
		Debug(msg string, args ...any)
	}

	mu      sync.Mutex
	ownIPs  map[string]bool
	ownOnce sync.Once
}

// NewAdminGuard wraps next with the origin checks. port is used for
// the localhost redirect target.
func NewAdminGuard(next http.Handler, port int) *AdminGuard {
	return &AdminGuard{
		next:   next,
		port:   port,
		logger: logging.GetLogger("guard"),
	}
}

func (g *AdminGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	if ip == nil || ip.IsLoopback() {
		g.next.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if isPublicPath(r.URL.Path) {
			g.next.ServeHTTP(w, r)
			return
		}
		// A browser on this machine using the LAN address: bounce it
		// to localhost where the full panel is allowed.
		if g.isOwnAddress(ip) {
			target := fmt.Sprintf("http://localhost:%d%s", g.port, r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
	}

	g.logger.Debug("Admin route denied", "remote", ip.String(),
		"method", r.Method, "path", r.URL.Path)
	g.forbidden(w, r)
}

func (g *AdminGuard) forbidden(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"ok":false,"error":{"category":"auth","title":"Forbidden","message":"Administrative routes are only reachable from this machine"}}`)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, "<!doctype html><title>Forbidden</title><h1>403</h1><p>This page is only reachable from the broadcast machine itself.</p>")
}

// isOwnAddress reports whether ip belongs to one of this host's
// interfaces. The set is computed once; interface changes require a
// process restart anyway because listeners rebind.
func (g *AdminGuard) isOwnAddress(ip net.IP) bool {
	g.ownOnce.Do(func() {
		own := make(map[string]bool)
		if addrs, err := net.InterfaceAddrs(); err == nil {
			for _, addr := range addrs {
				if ipNet, ok := addr.(*net.IPNet); ok {
					own[ipNet.IP.String()] = true
				}
			}
		}
		g.mu.Lock()
		g.ownIPs = own
		g.mu.Unlock()
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ownIPs[ip.String()]
}

func isPublicPath(path string) bool {
	if publicExact[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
