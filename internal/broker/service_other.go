//go:build !linux

package broker

import "context"

// detectService is a no-op outside Linux; Windows goes through the
// service fallback inside stopBroker, macOS always runs the broker as
// a direct child.
func detectService(_ context.Context, _ Installation) serviceHandle {
	return nil
}
