package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileCreatesParents(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	if err := WriteFile(name, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestWriteFileLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "out.txt")
	for i := 0; i < 3; i++ {
		if err := WriteFile(name, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestJSONRoundTripMissing(t *testing.T) {
	name := filepath.Join(t.TempDir(), "doc.json")

	var v map[string]int
	ok, err := ReadJSON(name, &v)
	if err != nil || ok {
		t.Fatalf("ReadJSON(missing) = %v, %v, want false, nil", ok, err)
	}

	if err := WriteJSON(name, map[string]int{"x": 1}); err != nil {
		t.Fatal(err)
	}
	ok, err = ReadJSON(name, &v)
	if err != nil || !ok {
		t.Fatalf("ReadJSON = %v, %v", ok, err)
	}
	if v["x"] != 1 {
		t.Errorf("x = %d, want 1", v["x"])
	}
}
