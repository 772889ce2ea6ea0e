package artifact

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNames(t *testing.T) {
	if got := KernelName(4); got != "4.wgsl" {
		t.Errorf("KernelName(4) = %q", got)
	}
	if got := GlueName(4); got != "ComputeBinding_4.go" {
		t.Errorf("GlueName(4) = %q", got)
	}
}

func TestDirStoreSkipsIdenticalWrites(t *testing.T) {
	s := DirStore{Dir: filepath.Join(t.TempDir(), "gen")}

	changed, err := s.Write("0.wgsl", []byte("a"))
	if err != nil || !changed {
		t.Fatalf("first Write = %v, %v, want true, nil", changed, err)
	}
	info, err := os.Stat(filepath.Join(s.Dir, "0.wgsl"))
	if err != nil {
		t.Fatal(err)
	}
	changed, err = s.Write("0.wgsl", []byte("a"))
	if err != nil || changed {
		t.Fatalf("identical Write = %v, %v, want false, nil", changed, err)
	}
	again, _ := os.Stat(filepath.Join(s.Dir, "0.wgsl"))
	if !again.ModTime().Equal(info.ModTime()) {
		t.Error("identical Write touched the file")
	}
	if changed, _ := s.Write("0.wgsl", []byte("b")); !changed {
		t.Error("different Write reported no change")
	}
}

func TestDirStoreRemove(t *testing.T) {
	s := DirStore{Dir: t.TempDir()}
	if err := s.Remove("missing.wgsl"); err != nil {
		t.Errorf("Remove(missing) = %v, want nil", err)
	}
	if _, err := s.Write("1.wgsl", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("1.wgsl"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("1.wgsl"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Read after Remove = %v, want ErrNotExist", err)
	}
}

func TestMemStoreCounts(t *testing.T) {
	s := NewMemStore()
	s.Write("a", []byte("1"))
	s.Write("a", []byte("1"))
	s.Write("b", []byte("2"))
	s.Remove("a")
	s.Remove("a")

	if s.Writes != 2 || s.Removes != 1 {
		t.Errorf("Writes, Removes = %d, %d, want 2, 1", s.Writes, s.Removes)
	}
	if names := s.Names(); len(names) != 1 || names[0] != "b" {
		t.Errorf("Names = %v, want [b]", names)
	}
}

func TestDiff(t *testing.T) {
	got, err := Diff("0.wgsl", []byte("a\nb\n"), []byte("a\nc\n"), 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--- a/0.wgsl", "+++ b/0.wgsl", "-b\n", "+c\n", " a\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
}

func TestDryRunDoesNotWrite(t *testing.T) {
	base := NewMemStore()
	base.Write("0.wgsl", []byte("old\n"))
	var out bytes.Buffer
	d := &DryRun{Base: base, Out: &out}

	if changed, err := d.Write("0.wgsl", []byte("new\n")); err != nil || !changed {
		t.Fatalf("Write = %v, %v", changed, err)
	}
	if changed, _ := d.Write("1.wgsl", []byte("x\n")); !changed {
		t.Error("new file not reported")
	}
	if changed, _ := d.Write("0.wgsl", []byte("old\n")); changed {
		t.Error("identical content reported as change")
	}
	if err := d.Remove("0.wgsl"); err != nil {
		t.Fatal(err)
	}

	if base.Writes != 1 || base.Removes != 0 {
		t.Errorf("base mutated: Writes=%d Removes=%d", base.Writes, base.Removes)
	}
	if d.Changes != 3 {
		t.Errorf("Changes = %d, want 3", d.Changes)
	}
	if !strings.Contains(out.String(), "--- /dev/null\n+++ b/1.wgsl") {
		t.Errorf("creation diff missing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "+++ /dev/null") {
		t.Errorf("removal diff missing:\n%s", out.String())
	}
}
