package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWrapWithMiddleware_Order(t *testing.T) {
	var calls []string
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls = append(calls, "client:"+req.Model)
		return &Response{StopReason: StopReasonStop}, nil
	})

	mw := func(name string) Middleware {
		return MiddlewareFunc{
			BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
				calls = append(calls, "before:"+name)
				return req, nil
			},
			AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
				calls = append(calls, "after:"+name)
				return resp, nil
			},
		}
	}

	client := WrapWithMiddleware(base, mw("a"), mw("b"))
	if _, err := client.Synchronous(context.Background(), &Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"before:a", "before:b", "client:m", "after:b", "after:a"}
	if len(calls) != len(expected) {
		t.Fatalf("Expected %d calls, got %v", len(expected), calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], expected[i])
		}
	}
}

func TestWrapWithMiddleware_OnErrorKeepsOriginal(t *testing.T) {
	boom := errors.New("boom")
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, boom
	})

	observed := 0
	client := WrapWithMiddleware(base, MiddlewareFunc{
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			observed++
			return nil
		},
	})

	_, err := client.Synchronous(context.Background(), &Request{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected original error, got %v", err)
	}
	if observed != 1 {
		t.Errorf("Expected OnError to be called once, got %d", observed)
	}
}

func TestWrapWithMiddleware_BeforeRequestAborts(t *testing.T) {
	called := false
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return &Response{}, nil
	})
	abort := errors.New("abort")

	client := WrapWithMiddleware(base, MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
			return nil, abort
		},
	})

	if _, err := client.Synchronous(context.Background(), &Request{}); !errors.Is(err, abort) {
		t.Errorf("Expected abort error, got %v", err)
	}
	if called {
		t.Error("Expected underlying client not to be called")
	}
}

func TestWrapWithMiddleware_NoMiddleware(t *testing.T) {
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{}, nil
	})
	if _, ok := WrapWithMiddleware(base).(ClientFunc); !ok {
		t.Error("Expected client to be returned unwrapped")
	}
}

func TestWrapWithMiddleware_OnErrorRewrites(t *testing.T) {
	boom := errors.New("boom")
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, boom
	})
	wrap := func(prefix string) Middleware {
		return MiddlewareFunc{OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			return fmt.Errorf("%s: %w", prefix, err)
		}}
	}

	_, err := WrapWithMiddleware(base, wrap("inner"), wrap("outer")).Synchronous(context.Background(), &Request{})
	if err == nil || err.Error() != "outer: inner: boom" || !errors.Is(err, boom) {
		t.Errorf("Expected errors rewritten in order, got %v", err)
	}
}
