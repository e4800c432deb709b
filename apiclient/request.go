package apiclient

import (
	"net/http"
	"net/url"
)

// Request describes one outbound call. It is passed by value: the retry path sends a copy
// with Attempt incremented, so two requests never share retry state.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Attempt is 0 for the original send and 1 for the single retry after a refresh.
	Attempt int

	// SkipRefresh disables refresh-and-retry on 401. Used for the credential endpoints,
	// where a 401 means bad credentials rather than an expired session.
	SkipRefresh bool
}

func (r Request) retry() Request {
	r.Attempt++
	return r
}

func (r Request) canRefresh() bool {
	return !r.SkipRefresh && r.Attempt == 0
}

func (r Request) url(baseURL string) string {
	u := baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

func NewRequest(method, path string, body any) Request {
	return Request{Method: method, Path: path, Body: body}
}

func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}
