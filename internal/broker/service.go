package broker

import "context"

// serviceHandle abstracts an OS service manager controlling the broker
// (systemd on Linux, the Windows service wrapper). A nil handle means
// the broker is run as a direct child process.
type serviceHandle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running(ctx context.Context) bool
	Close()
}
