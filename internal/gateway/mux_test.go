package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

const muxCatalog = `
models:
  - id: gpt-4.1
    provider: openai
    max_input_tokens: 1047576
    max_output_tokens: 32768
    json_mode: response_format
    streaming: true
  - id: gpt-4o
    provider: openai
    max_input_tokens: 128000
    max_output_tokens: 16384
    json_mode: response_format
    streaming: true
`

type muxHarness struct {
	t       *testing.T
	client  net.Conn
	mux     *Mux
	scanner *bufio.Scanner
	done    chan struct{}
}

func newMuxHarness(t *testing.T, adapter provider.Adapter, limiter *Limiter, cfg MuxConfig) *muxHarness {
	t.Helper()

	registry, err := catalog.Parse([]byte(muxCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	adapters, err := provider.NewRegistry(adapter)
	if err != nil {
		t.Fatalf("adapters: %v", err)
	}

	server, client := net.Pipe()
	m := NewMux(server, registry, adapters, limiter, cfg)

	done := make(chan struct{})
	go func() {
		_ = m.Serve(context.Background())
		close(done)
	}()

	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("mux did not shut down")
		}
	})

	return &muxHarness{
		t:       t,
		client:  client,
		mux:     m,
		scanner: bufio.NewScanner(client),
		done:    done,
	}
}

func (h *muxHarness) send(line string) {
	h.t.Helper()
	h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := h.client.Write([]byte(line + "\n")); err != nil {
		h.t.Fatalf("write: %v", err)
	}
}

func (h *muxHarness) read() Event {
	h.t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !h.scanner.Scan() {
		h.t.Fatalf("read: %v", h.scanner.Err())
	}
	var ev Event
	if err := json.Unmarshal(h.scanner.Bytes(), &ev); err != nil {
		h.t.Fatalf("unmarshal %q: %v", h.scanner.Text(), err)
	}
	return ev
}

// tryRead returns false if no event arrives within the wait window.
func (h *muxHarness) tryRead(wait time.Duration) (Event, bool) {
	h.t.Helper()
	h.client.SetReadDeadline(time.Now().Add(wait))
	if !h.scanner.Scan() {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(h.scanner.Bytes(), &ev); err != nil {
		h.t.Fatalf("unmarshal %q: %v", h.scanner.Text(), err)
	}
	return ev, true
}

func TestMuxHappyPath(t *testing.T) {
	adapter := &fakeAdapter{
		tag: catalog.ProviderOpenAI,
		script: []provider.Event{
			textChunk("Hello"),
			textChunk(" there"),
			{Usage: &provider.Usage{InputTokens: 9, OutputTokens: 2}},
		},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"Hello"}`)

	var types []EventType
	for {
		ev := h.read()
		if ev.RequestID != "r1" {
			t.Fatalf("event tagged %q, want r1", ev.RequestID)
		}
		types = append(types, ev.Type)
		if ev.Terminal() {
			break
		}
	}

	want := []EventType{EventChunk, EventChunk, EventUsage, EventDone}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("event order = %v, want %v", types, want)
	}
}

func TestMuxUnknownModel(t *testing.T) {
	adapter := &fakeAdapter{tag: catalog.ProviderOpenAI}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"does-not-exist","message":"Hello"}`)

	ev := h.read()
	if ev.Type != EventError || ev.RequestID != "r1" {
		t.Fatalf("expected chat_error for r1, got %+v", ev)
	}
	if ev.Error.Kind != KindUnknownModel {
		t.Errorf("kind = %s, want UnknownModel", ev.Error.Kind)
	}
	if n := h.mux.OpenSessions(); n != 0 {
		t.Errorf("no session should be created, have %d", n)
	}

	if _, ok := h.tryRead(100 * time.Millisecond); ok {
		t.Error("no further events expected for a rejected request")
	}
}

func TestMuxValidationRejectedBeforeSession(t *testing.T) {
	adapter := &fakeAdapter{tag: catalog.ProviderOpenAI}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi","options":{"temperature":9}}`)

	ev := h.read()
	if ev.Type != EventError || ev.Error.Kind != KindInvalidRequest {
		t.Fatalf("expected InvalidRequest error, got %+v", ev)
	}
	if n := h.mux.OpenSessions(); n != 0 {
		t.Errorf("no session should be created, have %d", n)
	}
}

func TestMuxDuplicateRequestID(t *testing.T) {
	adapter := &fakeAdapter{
		tag:    catalog.ProviderOpenAI,
		delay:  30 * time.Millisecond,
		script: []provider.Event{textChunk("a"), textChunk("b"), textChunk("c")},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"first"}`)
	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"dup"}`)

	// The rejection must not carry r1: a terminal-typed event tagged with
	// the in-flight id would end that stream for the client, and everything
	// r1 emits afterwards would follow a terminal event.
	sawDupError := false
	var r1Types []EventType
	for {
		ev := h.read()
		if ev.Type == EventError && ev.RequestID == "" {
			sawDupError = true
			continue
		}
		if ev.RequestID != "r1" {
			t.Fatalf("unexpected event %+v", ev)
		}
		r1Types = append(r1Types, ev.Type)
		if ev.Terminal() {
			break
		}
	}
	if !sawDupError {
		t.Error("duplicate request id was not rejected")
	}
	want := []EventType{EventChunk, EventChunk, EventChunk, EventDone}
	if fmt.Sprint(r1Types) != fmt.Sprint(want) {
		t.Errorf("r1 stream = %v, want %v", r1Types, want)
	}
}

func TestMuxConnectionCapacity(t *testing.T) {
	adapter := &fakeAdapter{
		tag:    catalog.ProviderOpenAI,
		delay:  50 * time.Millisecond,
		script: []provider.Event{textChunk("slow")},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{MaxSessions: 1})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	h.send(`{"type":"chat","requestId":"r2","model":"gpt-4.1","message":"hi"}`)

	// r2 must be rejected synchronously with a capacity error while r1 is
	// still in flight.
	for {
		ev := h.read()
		if ev.RequestID == "r2" {
			if ev.Type != EventError || ev.Error.Kind != KindCapacityExceeded {
				t.Fatalf("expected CapacityExceeded for r2, got %+v", ev)
			}
			return
		}
	}
}

func TestMuxProviderLimiter(t *testing.T) {
	adapter := &fakeAdapter{
		tag:    catalog.ProviderOpenAI,
		delay:  50 * time.Millisecond,
		script: []provider.Event{textChunk("slow")},
	}
	limiter := NewLimiter(1, catalog.ProviderOpenAI)
	h := newMuxHarness(t, adapter, limiter, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	h.send(`{"type":"chat","requestId":"r2","model":"gpt-4o","message":"hi"}`)

	for {
		ev := h.read()
		if ev.RequestID == "r2" {
			if ev.Type != EventError || ev.Error.Kind != KindCapacityExceeded {
				t.Fatalf("expected CapacityExceeded for r2, got %+v", ev)
			}
			return
		}
	}
}

func TestMuxCancelSuppressesChunks(t *testing.T) {
	adapter := &fakeAdapter{
		tag:   catalog.ProviderOpenAI,
		delay: 25 * time.Millisecond,
		script: []provider.Event{
			textChunk("1"), textChunk("2"), textChunk("3"), textChunk("4"),
			textChunk("5"), textChunk("6"), textChunk("7"), textChunk("8"),
		},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)

	first := h.read()
	if first.Type != EventChunk {
		t.Fatalf("expected first chunk, got %+v", first)
	}

	h.send(`{"type":"cancel","requestId":"r1"}`)

	sawCancelled := false
	for !sawCancelled {
		ev := h.read()
		if ev.Type == EventCancelled {
			sawCancelled = true
		}
	}

	// Nothing may follow the terminal event for r1.
	if ev, ok := h.tryRead(150 * time.Millisecond); ok {
		t.Errorf("event after chat_cancelled: %+v", ev)
	}
}

func TestMuxCancelUnknownIsNoop(t *testing.T) {
	adapter := &fakeAdapter{tag: catalog.ProviderOpenAI, script: []provider.Event{textChunk("x")}}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"cancel","requestId":"ghost"}`)

	// Still a working connection afterwards.
	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	for {
		ev := h.read()
		if ev.Terminal() {
			if ev.Type != EventDone {
				t.Errorf("expected chat_done, got %+v", ev)
			}
			return
		}
	}
}

func TestMuxUnrecognizedMessageKind(t *testing.T) {
	adapter := &fakeAdapter{tag: catalog.ProviderOpenAI, script: []provider.Event{textChunk("ok")}}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"subscribe","requestId":"r9"}`)

	ev := h.read()
	if ev.Type != EventError || ev.Error.Kind != KindInvalidRequest {
		t.Fatalf("expected protocol error, got %+v", ev)
	}

	// The connection stays open.
	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	for {
		ev := h.read()
		if ev.Terminal() {
			if ev.Type != EventDone {
				t.Errorf("expected chat_done, got %+v", ev)
			}
			return
		}
	}
}

func TestMuxMalformedJSON(t *testing.T) {
	adapter := &fakeAdapter{tag: catalog.ProviderOpenAI}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{not json`)

	ev := h.read()
	if ev.Type != EventError || ev.Error.Kind != KindInvalidRequest {
		t.Fatalf("expected protocol error, got %+v", ev)
	}
}

func TestMuxInterleavingPreservesPerIDOrder(t *testing.T) {
	adapter := &fakeAdapter{
		tag:   catalog.ProviderOpenAI,
		delay: 10 * time.Millisecond,
		script: []provider.Event{
			textChunk("1"), textChunk("2"), textChunk("3"),
		},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	h.send(`{"type":"chat","requestId":"r2","model":"gpt-4o","message":"hi"}`)

	contents := map[string][]string{}
	terminals := 0
	for terminals < 2 {
		ev := h.read()
		switch ev.Type {
		case EventChunk:
			contents[ev.RequestID] = append(contents[ev.RequestID], ev.Content)
		case EventDone:
			terminals++
		case EventError, EventCancelled:
			t.Fatalf("unexpected terminal: %+v", ev)
		}
	}

	for _, id := range []string{"r1", "r2"} {
		got := fmt.Sprint(contents[id])
		if got != "[1 2 3]" {
			t.Errorf("per-id order corrupted for %s: %v", id, contents[id])
		}
	}
}

func TestMuxDisconnectCancelsSessions(t *testing.T) {
	adapter := &fakeAdapter{
		tag:   catalog.ProviderOpenAI,
		delay: 30 * time.Millisecond,
		script: []provider.Event{
			textChunk("1"), textChunk("2"), textChunk("3"), textChunk("4"),
			textChunk("5"), textChunk("6"), textChunk("7"), textChunk("8"),
		},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{})

	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)
	h.read() // first chunk: session is live

	h.client.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after disconnect")
	}
	if n := h.mux.OpenSessions(); n != 0 {
		t.Errorf("sessions leaked after disconnect: %d", n)
	}
}

func TestMuxUndrainedClientFreesSessions(t *testing.T) {
	adapter := &fakeAdapter{
		tag:    catalog.ProviderOpenAI,
		script: []provider.Event{textChunk("1"), textChunk("2"), textChunk("3")},
	}
	h := newMuxHarness(t, adapter, nil, MuxConfig{WriteTimeout: 150 * time.Millisecond})

	// The client opens a stream and then never reads. The write deadline is
	// the grace period: once it expires the connection is torn down and the
	// session must not stay open holding its slot.
	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"hi"}`)

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the write deadline expired")
	}
	if n := h.mux.OpenSessions(); n != 0 {
		t.Errorf("sessions leaked behind an undrained client: %d", n)
	}
}

func TestMuxSlowEstimateDoesNotBlockReads(t *testing.T) {
	adapter := &fakeAdapter{
		tag:    catalog.ProviderOpenAI,
		script: []provider.Event{textChunk("ok")},
	}
	cfg := MuxConfig{
		Estimate: func(messages []provider.Message, model string) int {
			// A cold encoding cache can stall the first estimate.
			if messages[0].Content == "slow" {
				time.Sleep(time.Second)
			}
			return 1
		},
	}
	h := newMuxHarness(t, adapter, nil, cfg)

	start := time.Now()
	h.send(`{"type":"chat","requestId":"r1","model":"gpt-4.1","message":"slow"}`)
	h.send(`{"type":"chat","requestId":"r2","model":"gpt-4o","message":"quick"}`)

	// r2 must stream to completion while r1 is still estimating.
	for {
		ev := h.read()
		if ev.RequestID == "r2" && ev.Terminal() {
			if ev.Type != EventDone {
				t.Fatalf("r2 terminal = %+v", ev)
			}
			break
		}
	}
	if elapsed := time.Since(start); elapsed > 800*time.Millisecond {
		t.Errorf("r2 took %v, read loop appears blocked by r1's estimate", elapsed)
	}
}
