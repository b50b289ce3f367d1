package server

import (
	"context"
	"errors"
	"testing"

	"github.com/penumbralworks/narvox/pkg/audio"
	audiomock "github.com/penumbralworks/narvox/pkg/audio/mock"
)

func TestHub_PlayWithoutListener(t *testing.T) {
	t.Parallel()
	h := NewHub()

	_, err := h.Play(context.Background(), audio.Clip{Text: "hello"})
	if !errors.Is(err, ErrNoListener) {
		t.Fatalf("expected ErrNoListener, got %v", err)
	}
	if h.Listening() {
		t.Error("Listening() should be false with no sink attached")
	}
}

func TestHub_PlayDelegates(t *testing.T) {
	t.Parallel()
	h := NewHub()
	sink := audiomock.NewSink()
	h.Attach(sink)

	if !h.Listening() {
		t.Fatal("Listening() should be true after Attach")
	}

	pb, err := h.Play(context.Background(), audio.Clip{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pb == nil {
		t.Fatal("expected a playback")
	}
	if got := sink.PlayedTexts(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("unexpected played texts: %v", got)
	}
}

func TestHub_AttachDisplacesPrevious(t *testing.T) {
	t.Parallel()
	h := NewHub()
	first := audiomock.NewSink()
	second := audiomock.NewSink()

	displaced := h.Attach(first)
	h.Attach(second)

	select {
	case <-displaced:
	default:
		t.Fatal("first listener's displaced channel should be closed")
	}
	if first.CallCountClose != 1 {
		t.Errorf("first sink Close calls: got %d, want 1", first.CallCountClose)
	}

	// Clips now land on the second sink.
	if _, err := h.Play(context.Background(), audio.Clip{Text: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Playbacks) != 1 {
		t.Errorf("second sink playbacks: got %d, want 1", len(second.Playbacks))
	}
	if len(first.Playbacks) != 0 {
		t.Errorf("first sink playbacks: got %d, want 0", len(first.Playbacks))
	}
}

func TestHub_DetachOnlyRemovesCurrent(t *testing.T) {
	t.Parallel()
	h := NewHub()
	first := audiomock.NewSink()
	second := audiomock.NewSink()

	h.Attach(first)
	h.Attach(second)

	// Detaching the displaced sink must not remove the live one.
	h.Detach(first)
	if !h.Listening() {
		t.Fatal("second sink should still be attached")
	}

	h.Detach(second)
	if h.Listening() {
		t.Error("Listening() should be false after detaching the live sink")
	}
}

func TestHub_CloseRejectsNewListeners(t *testing.T) {
	t.Parallel()
	h := NewHub()
	sink := audiomock.NewSink()
	h.Attach(sink)

	if err := h.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.CallCountClose != 1 {
		t.Errorf("sink Close calls: got %d, want 1", sink.CallCountClose)
	}

	late := audiomock.NewSink()
	displaced := h.Attach(late)
	select {
	case <-displaced:
	default:
		t.Fatal("attach after Close should return a closed channel")
	}
	if late.CallCountClose != 1 {
		t.Errorf("late sink should be closed immediately, got %d Close calls", late.CallCountClose)
	}
	if _, err := h.Play(context.Background(), audio.Clip{}); !errors.Is(err, ErrNoListener) {
		t.Errorf("expected ErrNoListener after Close, got %v", err)
	}
}
