package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between two versions of name.
// Missing sides are shown as /dev/null.
func Diff(name string, before, after []byte, context int) (string, error) {
	if context <= 0 {
		context = 3
	}
	from, to := "a/"+name, "b/"+name
	if before == nil {
		from = "/dev/null"
	}
	if after == nil {
		to = "/dev/null"
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(string(before)),
		B:        splitLines(string(after)),
		FromFile: from,
		ToFile:   to,
		Context:  context,
	}
	return difflib.GetUnifiedDiffString(u)
}

// splitLines splits s keeping line terminators, as difflib expects.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

// DryRun is a Store that reads from Base, never writes, and prints a unified
// diff of every change it would have made to Out.
type DryRun struct {
	Base Store
	Out  io.Writer
	// Changes counts the writes and removals that would have happened.
	Changes int
}

// Read implements Store.
func (d *DryRun) Read(name string) ([]byte, error) { return d.Base.Read(name) }

// Write implements Store.
func (d *DryRun) Write(name string, data []byte) (bool, error) {
	old, err := d.Base.Read(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err == nil && string(old) == string(data) {
		return false, nil
	}
	if err := d.print(name, old, data); err != nil {
		return false, err
	}
	d.Changes++
	return true, nil
}

// Remove implements Store.
func (d *DryRun) Remove(name string) error {
	old, err := d.Base.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	d.Changes++
	return d.print(name, old, nil)
}

func (d *DryRun) print(name string, before, after []byte) error {
	text, err := Diff(name, before, after, 3)
	if err != nil {
		return fmt.Errorf("artifact: diff %s: %w", name, err)
	}
	_, err = io.WriteString(d.Out, text)
	return err
}
