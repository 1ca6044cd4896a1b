package natsutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("traceparent = %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestHeaderCarrier_NilHeader(t *testing.T) {
	carrier := (*headerCarrier)(&nats.Msg{})

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("keys = %v", keys)
	}
}

func TestJSONHandler(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var got payload
	h := jsonHandler(func(_ context.Context, v payload) { got = v })

	data, _ := json.Marshal(payload{Name: "doc"})
	h(&nats.Msg{Data: data})
	if got.Name != "doc" {
		t.Errorf("got %+v", got)
	}

	called := false
	bad := jsonHandler(func(_ context.Context, _ payload) { called = true })
	bad(&nats.Msg{Data: []byte("{nope")})
	if called {
		t.Error("malformed message must be dropped")
	}
}
