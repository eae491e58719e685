package itemid

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestFromFile(t *testing.T) {
	id1 := FromFile("alice", "/faces/alice/1.jpg")
	id2 := FromFile("alice", "/faces/alice/1.jpg")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("ID is not a UUID: %q", id1)
	}
	if FromFile("bob", "/faces/alice/1.jpg") == id1 {
		t.Error("different tenants should give different IDs")
	}
	if FromFile("alice", "/faces/alice/2.jpg") == id1 {
		t.Error("different paths should give different IDs")
	}
}

func TestFromFile_cleanPath(t *testing.T) {
	dir := t.TempDir()
	a := FromFile("t", filepath.Join(dir, "x", "..", "img.png"))
	b := FromFile("t", filepath.Join(dir, "img.png"))
	if a != b {
		t.Errorf("equivalent paths should give same ID: %q vs %q", a, b)
	}
}

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Error("New should not repeat")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("New is not a UUID: %q", a)
	}
}
