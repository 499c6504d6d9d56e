package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vidstyle/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	inner := errors.New("boom")
	err := services.Wrap(services.ErrValidation, "img2img", "transform", "rejected input", inner)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
	if !strings.Contains(err.Error(), "img2img: transform: rejected input") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "img2img", "transform", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestIsTransientClassification(t *testing.T) {
	if !services.IsTransient(services.Wrap(services.ErrTransient, "x", "y", "", nil)) {
		t.Fatal("transient marker should be transient")
	}
	if !services.IsTransient(services.Wrap(services.ErrTimeout, "x", "y", "", nil)) {
		t.Fatal("timeout marker should be transient")
	}
	if services.IsTransient(context.Canceled) {
		t.Fatal("context cancellation must not be transient")
	}
	if services.IsTransient(services.Wrap(services.ErrTimeout, "x", "y", "", context.Canceled)) {
		t.Fatal("a wrapped cancellation must not be transient")
	}
	if !services.IsTransient(services.Wrap(services.ErrTimeout, "x", "y", "", context.DeadlineExceeded)) {
		t.Fatal("a timeout-tagged deadline error should be transient")
	}
	if services.IsTransient(services.Wrap(services.ErrValidation, "x", "y", "", nil)) {
		t.Fatal("validation marker must not be transient")
	}
}

func TestIsPermanentClassification(t *testing.T) {
	if !services.IsPermanent(services.Wrap(services.ErrValidation, "x", "y", "", nil)) {
		t.Fatal("validation marker should be permanent")
	}
	if services.IsPermanent(services.Wrap(services.ErrTransient, "x", "y", "", nil)) {
		t.Fatal("transient marker must not be permanent")
	}
}
