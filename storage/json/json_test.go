package json

import (
	"context"
	"path/filepath"
	"testing"
)

type record struct {
	Values map[string]string
	Count  int
}

func (r *record) Init() {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
}

func TestWithInitializesZeroValueOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	s := New[record](filepath.Join(dir, "db.lock"), filepath.Join(dir, "db.json"))

	var seen record
	err := s.With(context.Background(), func(r *record) error {
		seen = *r
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if seen.Values == nil {
		t.Fatalf("expected Init() to have run, got nil map")
	}
}

func TestUpdatePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "db.lock")
	dataPath := filepath.Join(dir, "db.json")

	s1 := New[record](lockPath, dataPath)
	err := s1.Update(context.Background(), func(r *record) error {
		r.Values["a"] = "1"
		r.Count = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	s2 := New[record](lockPath, dataPath)
	var got record
	err = s2.With(context.Background(), func(r *record) error {
		got = *r
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if got.Count != 1 || got.Values["a"] != "1" {
		t.Fatalf("unexpected persisted record: %+v", got)
	}
}

func TestUpdateDoesNotPersistOnError(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "db.lock")
	dataPath := filepath.Join(dir, "db.json")
	s := New[record](lockPath, dataPath)

	sentinel := errTest{}
	err := s.Update(context.Background(), func(r *record) error {
		r.Count = 99
		return sentinel
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}

	var got record
	_ = s.With(context.Background(), func(r *record) error {
		got = *r
		return nil
	})
	if got.Count == 99 {
		t.Fatalf("expected failed Update not to persist")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
