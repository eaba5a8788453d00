package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("got %v, %v", resp, err)
	}

	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order: got %v", order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) { return nil, errFail }

	noop := func(next Endpoint) Endpoint { return next }
	if _, err := Chain(noop)(base)(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "http" || GetPageID(ctx) != "" {
		t.Fatal("empty context defaults")
	}
	ctx = WithPageID(WithTransport(ctx, "mcp"), "widget")
	if GetTransport(ctx) != "mcp" || GetPageID(ctx) != "widget" {
		t.Fatalf("got %q %q", GetTransport(ctx), GetPageID(ctx))
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fail := func(_ context.Context, _ any) (any, error) { return nil, errors.New("boom") }
	ctx := WithPageID(WithTransport(context.Background(), "mcp"), "widget")
	if _, err := Logging(logger, "navigate")(fail)(ctx, nil); err == nil {
		t.Fatal("error swallowed")
	}

	out := buf.String()
	for _, want := range []string{`"endpoint":"navigate"`, `"transport":"mcp"`, `"page":"widget"`, `"error":"boom"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

func TestRecover(t *testing.T) {
	panics := func(_ context.Context, req any) (any, error) {
		_ = req.(string)
		return nil, nil
	}
	resp, err := Chain(Recover())(panics)(context.Background(), 42)
	if err == nil || !strings.Contains(err.Error(), "panic") || resp != nil {
		t.Fatalf("got %v, %v", resp, err)
	}
}
