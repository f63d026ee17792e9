//go:build !linux

package devices

import "context"

// StartHotplugWatch is a no-op outside Linux; Windows and macOS
// clients rely on the cache TTL and explicit refresh instead.
func (s *Service) StartHotplugWatch(_ context.Context) (func(), error) {
	return func() {}, nil
}
