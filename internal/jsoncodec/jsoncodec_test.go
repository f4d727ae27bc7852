package jsoncodec

import (
	"encoding/json"
	"strings"
	"testing"
)

type testPayload struct {
	ID   uint32          `json:"id"`
	Name string          `json:"method"`
	Data json.RawMessage `json:"data,omitempty"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Name: "worker.dump", Data: json.RawMessage(`{"a":1}`)}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"id":42,"method":"worker.dump","data":{"a":1}}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out testPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.ID != in.ID || out.Name != in.Name || string(out.Data) != string(in.Data) {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"id\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"method":"ping"}`)) {
		t.Fatal("expected valid document")
	}
	if Valid([]byte(`{"method":`)) {
		t.Fatal("expected truncated document to be invalid")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var out testPayload
	if err := Unmarshal([]byte("not json"), &out); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
