package llm

import (
	"context"
)

// Client issues one completion request against a model provider.
type Client interface {
	Synchronous(ctx context.Context, req *Request) (*Response, error)
}

// Middleware observes or rewrites the calls of a wrapped Client.
//
// OnError returning nil keeps the original error; a Middleware cannot turn a
// failed call into a success.
type Middleware interface {
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc builds a Middleware from optional hooks. Unset hooks pass
// values through.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc == nil {
		return req, nil
	}
	return f.BeforeRequestFunc(ctx, req)
}

func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc == nil {
		return resp, nil
	}
	return f.AfterResponseFunc(ctx, req, resp)
}

func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc == nil {
		return err
	}
	return f.OnErrorFunc(ctx, req, err)
}

// ClientFunc adapts a plain function to Client. Tests use it for scripted models.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ClientFunc) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// WrapWithMiddleware returns client decorated with middleware. BeforeRequest
// and OnError run in the given order, AfterResponse in reverse.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &chain{next: client, middleware: middleware}
}

type chain struct {
	next       Client
	middleware []Middleware
}

func (c *chain) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	var err error
	for _, mw := range c.middleware {
		if req, err = mw.BeforeRequest(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, callErr := c.next.Synchronous(ctx, req)
	if callErr != nil {
		return nil, c.rewriteError(ctx, req, callErr)
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		if resp, err = c.middleware[i].AfterResponse(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *chain) rewriteError(ctx context.Context, req *Request, callErr error) error {
	err := callErr
	for _, mw := range c.middleware {
		next := mw.OnError(ctx, req, err)
		if next == nil {
			return callErr
		}
		err = next
	}
	return err
}

var _ Client = (*chain)(nil)
