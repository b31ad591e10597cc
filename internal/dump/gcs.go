package dump

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSSink writes objects into a Google Cloud Storage bucket.
type GCSSink struct {
	client     *storage.Client
	bucketName string
	baseDir    string
}

// NewGCSSink connects with application default credentials and checks that
// the bucket is reachable.
func NewGCSSink(ctx context.Context, bucketName, baseDir string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucketName, err)
	}

	return &GCSSink{client: client, bucketName: bucketName, baseDir: baseDir}, nil
}

func (s *GCSSink) Write(ctx context.Context, name string, data []byte) error {
	w := s.client.Bucket(s.bucketName).Object(s.fullPath(name)).NewWriter(ctx)
	w.ContentType = contentType(name)

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *GCSSink) List(ctx context.Context, prefix string) ([]string, error) {
	base := s.fullPath("")
	it := s.client.Bucket(s.bucketName).Objects(ctx, &storage.Query{Prefix: base + prefix})

	var files []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, base)
		if name != "" && !strings.HasSuffix(name, "/") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}

func (s *GCSSink) fullPath(name string) string {
	if s.baseDir == "" {
		return name
	}
	return s.baseDir + "/" + name
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".mpd":
		return "application/dash+xml"
	default:
		return "application/octet-stream"
	}
}
