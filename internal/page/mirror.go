package page

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile renders the document to path. The file is replaced atomically.
func (d *Document) WriteFile(path string) error {
	out, err := d.HTML()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.html")
	if err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Mirror is a Document that rewrites its file after every change.
type Mirror struct {
	*Document
	path string
}

func NewMirror(doc *Document, path string) *Mirror {
	return &Mirror{Document: doc, path: path}
}

func (m *Mirror) Append(id string) error {
	if err := m.Document.Append(id); err != nil {
		return err
	}
	return m.WriteFile(m.path)
}

func (m *Mirror) SetStatus(id, status string) error {
	if err := m.Document.SetStatus(id, status); err != nil {
		return err
	}
	return m.WriteFile(m.path)
}

func (m *Mirror) Remove(id string) error {
	if err := m.Document.Remove(id); err != nil {
		return err
	}
	return m.WriteFile(m.path)
}

// Sync writes the current document without a change.
func (m *Mirror) Sync() error {
	return m.WriteFile(m.path)
}
