package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/ptw/internal/filelock"
	"github.com/harrison/ptw/internal/models"
)

// DocumentExt is the extension of permit documents in a File store.
const DocumentExt = ".json"

// File keeps one JSON document per permit in a directory. Writers are
// serialized per document with a flock so concurrent CLI invocations are safe.
type File struct {
	dir string
}

// NewFile returns a File store rooted at dir, creating the directory.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create permit directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the directory holding the documents.
func (f *File) Dir() string { return f.dir }

// PathFor returns the document path for a permit id.
func (f *File) PathFor(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid permit id %q", id)
	}
	return filepath.Join(f.dir, id+DocumentExt), nil
}

func (f *File) Save(ctx context.Context, p *models.Permit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return errors.New("save permit: nil permit")
	}
	path, err := f.PathFor(p.ID)
	if err != nil {
		return fmt.Errorf("save permit: %w", err)
	}
	data, err := models.Encode(p)
	if err != nil {
		return err
	}
	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("save permit %s: %w", p.ID, err)
	}
	return nil
}

func (f *File) Load(ctx context.Context, id string) (*models.Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.PathFor(id)
	if err != nil {
		return nil, fmt.Errorf("load permit: %w", err)
	}
	return readDocument(path)
}

// readDocument decodes the permit at path.
func readDocument(path string) (*models.Permit, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		id := strings.TrimSuffix(filepath.Base(path), DocumentExt)
		return nil, fmt.Errorf("load permit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := models.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadDocument decodes a permit document from an arbitrary path.
func ReadDocument(path string) (*models.Permit, error) {
	return readDocument(path)
}

func (f *File) List(ctx context.Context, filter Filter) ([]*models.Permit, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}

	var out []*models.Permit
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != DocumentExt {
			continue
		}
		p, err := readDocument(filepath.Join(f.dir, name))
		if err != nil {
			return nil, err
		}
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (f *File) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.PathFor(id)
	if err != nil {
		return fmt.Errorf("delete permit: %w", err)
	}
	removed, err := filelock.LockAndRemove(path)
	if err != nil {
		return fmt.Errorf("delete permit %s: %w", id, err)
	}
	if !removed {
		return fmt.Errorf("delete permit %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close is a no-op; File holds no open handles.
func (f *File) Close() error { return nil }
