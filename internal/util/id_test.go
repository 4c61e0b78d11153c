package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("para")
	if !strings.HasPrefix(id, "para_") || len(id) != len("para_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatalf("ids should be unique")
	}
	if len(NewRequestID()) != 16 {
		t.Fatalf("unexpected request id length")
	}
}
