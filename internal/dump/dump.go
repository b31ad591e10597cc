package dump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sink receives the raw bytes of completed segments.
type Sink interface {
	// Write stores data under name, replacing anything already there.
	Write(ctx context.Context, name string, data []byte) error

	// List returns the names stored under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Open returns the sink for target: "gs://bucket/prefix" selects Google Cloud
// Storage, anything else is a local directory.
func Open(ctx context.Context, target string) (Sink, error) {
	if rest, ok := strings.CutPrefix(target, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid dump target %q: missing bucket", target)
		}
		return NewGCSSink(ctx, bucket, strings.Trim(prefix, "/"))
	}
	return NewLocalSink(target)
}

// LocalSink writes files below a base directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates baseDir if needed.
func NewLocalSink(baseDir string) (*LocalSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory: %w", err)
	}
	return &LocalSink{baseDir: baseDir}, nil
}

func (s *LocalSink) Write(_ context.Context, name string, data []byte) error {
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalSink) List(_ context.Context, prefix string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			files = append(files, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *LocalSink) Close() error {
	return nil
}
