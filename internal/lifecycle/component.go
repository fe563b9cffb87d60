// Package lifecycle starts and stops long-running components of the faultline server in
// dependency order.
package lifecycle

import "context"

// Component is a managed service such as the HTTP server, the snapshot loop or the
// vector index connection.
type Component interface {
	// Start brings the component up. Long-running work runs in its own goroutine.
	Start(ctx context.Context) error
	// Stop shuts the component down within the deadline of ctx.
	Stop(ctx context.Context) error
	// Name identifies the component in logs and errors. It must not be empty.
	Name() string
}

// Func adapts a pair of functions to Component.
type Func struct {
	ComponentName string
	OnStart       func(ctx context.Context) error
	OnStop        func(ctx context.Context) error
}

// Name implements Component.
func (f *Func) Name() string { return f.ComponentName }

// Start implements Component.
func (f *Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

// Stop implements Component.
func (f *Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
