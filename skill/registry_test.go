package skill

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("get_location", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"city": "San Francisco"}, nil
	})

	out, err := r.Execute(context.Background(), "get_location", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"city":"San Francisco"}` {
		t.Errorf("unexpected output %s", out)
	}
}

func TestRegistry_UnknownSkill(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, err := r.Execute(context.Background(), "nope", nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}

func TestRegistry_HandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"plain failure becomes 500", errors.New("weather backend broke"), KindAPIStatus},
		{"deadline passes through", context.DeadlineExceeded, KindTimeout},
		{"status passes through", &StatusError{StatusCode: 400}, KindAPIStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(zerolog.Nop())
			r.Register("t", func(context.Context, json.RawMessage) (any, error) { return nil, tt.err })
			_, err := r.Execute(context.Background(), "t", nil)
			if got := Classify(err).Kind; got != tt.kind {
				t.Errorf("kind = %q, want %q", got, tt.kind)
			}
		})
	}
}

func TestRegistry_RawResults(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("raw", func(context.Context, json.RawMessage) (any, error) {
		return json.RawMessage(`{"already":"json"}`), nil
	})
	r.Register("nothing", func(context.Context, json.RawMessage) (any, error) { return nil, nil })

	out, err := r.Execute(context.Background(), "raw", nil)
	if err != nil || string(out) != `{"already":"json"}` {
		t.Errorf("unexpected raw result %s (%v)", out, err)
	}
	out, err = r.Execute(context.Background(), "nothing", nil)
	if err != nil || string(out) != "null" {
		t.Errorf("unexpected nil result %s (%v)", out, err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "nothing" || names[1] != "raw" {
		t.Errorf("unexpected names %v", names)
	}
}
