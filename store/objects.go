package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lvillar/docfill"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ObjectStore holds published artifacts and hands out URLs for them.
type ObjectStore interface {
	// Put stores data under key and returns the URL it is served from.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get returns the data stored under key. Missing keys wrap
	// docfill.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewKey returns a unique object key that keeps the artifact file name.
func NewKey(fileName string) string {
	return uuid.NewString() + "_" + fileName
}

// ValidateKey rejects keys that could escape an object directory.
func ValidateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return docfill.Validationf("invalid object key %q", key)
	}
	return nil
}

func objectURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}

// DirObjects stores artifacts as files in a local directory.
type DirObjects struct {
	dir     string
	baseURL string
}

// NewDirObjects creates dir if needed. URLs are baseURL + "/" + key.
func NewDirObjects(dir, baseURL string) (*DirObjects, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	return &DirObjects{dir: dir, baseURL: baseURL}, nil
}

// Put implements ObjectStore.
func (d *DirObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(d.dir, key), data); err != nil {
		return "", err
	}
	return objectURL(d.baseURL, key), nil
}

// Get implements ObjectStore.
func (d *DirObjects) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, docfill.NotFoundf("object %q", key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading object %s: %w", key, err)
	}
	return data, nil
}

// GridFSObjects stores artifacts in a MongoDB GridFS bucket.
type GridFSObjects struct {
	db      *mongo.Database
	name    string
	baseURL string
}

// NewGridFSObjects uses the named bucket in db.
func NewGridFSObjects(db *mongo.Database, bucketName, baseURL string) (*GridFSObjects, error) {
	g := &GridFSObjects{db: db, name: bucketName, baseURL: baseURL}
	if _, err := g.open(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

// open returns a bucket handle carrying the context deadline. Deadlines are
// bucket state, so every operation gets its own handle.
func (g *GridFSObjects) open(ctx context.Context) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(g.db, options.GridFSBucket().SetName(g.name))
	if err != nil {
		return nil, fmt.Errorf("store: opening GridFS bucket %s: %w", g.name, err)
	}
	d := deadline(ctx)
	if err := bucket.SetReadDeadline(d); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := bucket.SetWriteDeadline(d); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return bucket, nil
}

// Put implements ObjectStore.
func (g *GridFSObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	bucket, err := g.open(ctx)
	if err != nil {
		return "", err
	}
	meta := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "contentType", Value: docfill.ContentType(key)},
		{Key: "createdAt", Value: time.Now().UTC()},
	})
	if _, err := bucket.UploadFromStream(key, bytes.NewReader(data), meta); err != nil {
		return "", fmt.Errorf("store: uploading %s: %w", key, err)
	}
	return objectURL(g.baseURL, key), nil
}

// Get implements ObjectStore.
func (g *GridFSObjects) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	bucket, err := g.open(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := bucket.OpenDownloadStreamByName(key)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, docfill.NotFoundf("object %q", key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", key, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("store: downloading %s: %w", key, err)
	}
	return data, nil
}

// deadline returns the context deadline, or the zero time for none.
func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
