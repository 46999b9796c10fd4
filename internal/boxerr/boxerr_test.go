package boxerr

import (
	"errors"
	"testing"
)

func TestWrapPreservesCauseForErrorsIs(t *testing.T) {
	sentinel := errors.New("boom")
	wrapped := Wrap(Storage, "write disk", sentinel)

	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected errors.Is to see through to the sentinel cause")
	}
	if KindOf(wrapped) != Storage {
		t.Fatalf("KindOf = %v, want Storage", KindOf(wrapped))
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := Newf(NotFound, "box %s not found", "abc")
	if !Is(err, NotFound) {
		t.Fatalf("expected Is(err, NotFound) to be true")
	}
	if Is(err, Storage) {
		t.Fatalf("expected Is(err, Storage) to be false")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != Internal {
		t.Fatalf("expected plain errors to default to Internal")
	}
}
