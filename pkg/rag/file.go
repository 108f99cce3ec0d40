package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// isoMillis matches the timestamp format browsers report for files.
const isoMillis = "2006-01-02T15:04:05.000Z"

// File is an uploaded or local file to index.
type File struct {
	Name         string
	Type         string
	Size         int64
	LastModified time.Time
	Content      io.Reader
}

// IndexFile reads f and indexes it with source, type, size and
// lastModified metadata.
func (idx *Index) IndexFile(ctx context.Context, f File) ([]Chunk, error) {
	data, err := io.ReadAll(f.Content)
	if err != nil {
		return nil, fmt.Errorf("rag: read %s: %w", f.Name, err)
	}

	size := f.Size
	if size == 0 {
		size = int64(len(data))
	}

	meta := map[string]any{
		"source":       f.Name,
		"type":         f.Type,
		"size":         size,
		"lastModified": f.LastModified.UTC().Format(isoMillis),
	}
	return idx.IndexDocument(ctx, string(data), meta), nil
}

// IndexPath indexes a file from the local filesystem.
func (idx *Index) IndexPath(ctx context.Context, path string) ([]Chunk, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w", path, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("rag: stat %s: %w", path, err)
	}

	return idx.IndexFile(ctx, File{
		Name:         filepath.Base(path),
		Type:         mime.TypeByExtension(filepath.Ext(path)),
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Content:      fh,
	})
}

// IndexProjectInfo indexes a JSON rendering of info as project metadata.
func (idx *Index) IndexProjectInfo(ctx context.Context, info any) ([]Chunk, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rag: encode project info: %w", err)
	}
	return idx.IndexDocument(ctx, string(data), map[string]any{
		"source": "project-info",
		"type":   "metadata",
	}), nil
}
