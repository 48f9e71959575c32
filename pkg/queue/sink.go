package queue

import "context"

// Sink performs the actual send to the messaging platform. A nil return
// means the payload was delivered. Wrap the error with Permanent to
// signal that retrying cannot help (for example, the payload is
// invalid); any other error is treated as transient and retried.
type Sink interface {
	Dispatch(ctx context.Context, payload Payload) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, payload Payload) error

func (f SinkFunc) Dispatch(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// CleanupFunc is invoked after a successful dispatch so the media
// downloader can delete the files it staged. The queue only signals;
// the deletion itself happens outside the engine.
type CleanupFunc func(payload Payload)
