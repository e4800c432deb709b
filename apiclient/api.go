package apiclient

import "context"

// API is the request surface services depend on. *Client implements it.
type API interface {
	Do(ctx context.Context, req Request, out any) error
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

var _ API = (*Client)(nil)
