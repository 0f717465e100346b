package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

const templateExt = ".pdf"

func withExt(name string) string {
	if strings.HasSuffix(strings.ToLower(name), templateExt) {
		return name
	}
	return name + templateExt
}

// DirSource reads templates from a local directory as <name>.pdf.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (d *DirSource) Path(name string) string {
	return filepath.Join(d.dir, withExt(name))
}

func (d *DirSource) Stat(_ context.Context, p string) (Info, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return Info{}, err
	}
	info := Info{Size: fi.Size(), Regular: fi.Mode().IsRegular(), Location: p}
	if info.Regular {
		f, err := os.Open(p)
		if err != nil {
			return Info{}, err
		}
		f.Close()
	}
	return info, nil
}

func (d *DirSource) Read(_ context.Context, p string) ([]byte, error) {
	return os.ReadFile(p)
}

// GCSSource reads templates from a bucket as <prefix>/<name>.pdf.
type GCSSource struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

func NewGCSSource(client *storage.Client, bucket, prefix string) *GCSSource {
	return &GCSSource{
		bucket:     client.Bucket(bucket),
		bucketName: bucket,
		prefix:     strings.Trim(prefix, "/"),
	}
}

func (g *GCSSource) Path(name string) string {
	if g.prefix == "" {
		return withExt(name)
	}
	return path.Join(g.prefix, withExt(name))
}

func (g *GCSSource) Stat(ctx context.Context, object string) (Info, error) {
	location := fmt.Sprintf("gs://%s/%s", g.bucketName, object)
	attrs, err := g.bucket.Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Info{}, fmt.Errorf("%w: %s", fs.ErrNotExist, location)
		}
		return Info{}, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	return Info{
		Size:     attrs.Size,
		Regular:  !strings.HasSuffix(attrs.Name, "/"),
		Location: location,
	}, nil
}

func (g *GCSSource) Read(ctx context.Context, object string) ([]byte, error) {
	location := fmt.Sprintf("gs://%s/%s", g.bucketName, object)
	reader, err := g.bucket.Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, location)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", location, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}
