package debugstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEmitWithNoClientsIsNoop(t *testing.T) {
	s := NewSink("127.0.0.1:0")
	s.Emit(Frame{PC: 1, Opcode: "Push", StackDepth: 1})
}

func TestClientReceivesEmittedFrames(t *testing.T) {
	s := NewSink("127.0.0.1:0")
	srv := httptest.NewServer(http.HandlerFunc(s.handleConn))
	defer srv.Close()
	defer s.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(wsURL)
	if err != nil {
		t.Fatalf("unexpected error dialing: %v", err)
	}
	defer client.Close()

	// give the server a moment to register the client before emitting
	time.Sleep(20 * time.Millisecond)
	s.Emit(Frame{PC: 7, Opcode: "Div", StackDepth: 2, HeapID: 1})

	select {
	case f := <-client.Frames():
		if f.PC != 7 || f.Opcode != "Div" {
			t.Fatalf("expected frame {PC:7 Opcode:Div}, got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted frame")
	}
}
