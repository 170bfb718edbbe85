package shim

import "context"

// Repairs collects what the transport changed while handling one request.
// Fields are written sequentially along the request path, never concurrently.
type Repairs struct {
	SchemasSanitized  bool
	SignatureInjected bool
	SignatureCaptured bool
	StreamRepaired    bool
}

type repairsKey struct{}

// WithRepairs attaches a Repairs recorder to the context. The transport
// fills it in as it processes the request carrying this context.
func WithRepairs(ctx context.Context) (context.Context, *Repairs) {
	r := &Repairs{}
	return context.WithValue(ctx, repairsKey{}, r), r
}

func repairsFromContext(ctx context.Context) *Repairs {
	r, _ := ctx.Value(repairsKey{}).(*Repairs)
	return r
}
