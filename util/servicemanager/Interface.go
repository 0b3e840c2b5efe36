package servicemanager

import "context"

// Service is a long running component managed by the ServiceManager. Init runs in registration
// order before Start. Start blocks until ctx is done and closes readyCh once the service accepts
// work.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context, readyCh chan<- struct{}) error
	Stop(ctx context.Context) error
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
}
