package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
)

func TestPlainRendersChanges(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := NewPlain(&buf)

	p.Append("abc")
	p.SetStatus("abc", "Available")
	p.Remove("abc")

	want := "+ abc - Status: Pending\n~ abc - Status: Available\n- abc\n"
	if buf.String() != want {
		t.Errorf("got %q want %q", buf.String(), want)
	}
}

func TestPlainUnknownID(t *testing.T) {
	p := NewPlain(&bytes.Buffer{})
	if err := p.SetStatus("x", "Done"); !errors.Is(err, ErrNoRow) {
		t.Errorf("expected ErrNoRow, got %v", err)
	}
	p.Know("x")
	if err := p.SetStatus("x", "Done"); err != nil {
		t.Errorf("known id: %v", err)
	}
}
