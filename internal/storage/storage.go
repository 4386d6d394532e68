// Package storage reads and writes datasets on local disk, standard streams or S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Stdio is the location of standard input for reads and standard output for writes.
const Stdio = "-"

const s3Scheme = "s3://"

// Kind is the backend a location resolves to.
type Kind int

const (
	KindFile Kind = iota
	KindStdio
	KindS3
)

// Location is a parsed dataset address.
type Location struct {
	Kind   Kind
	Path   string // local path
	Bucket string
	Key    string
}

// ParseLocation resolves "-", "s3://bucket/key" or a local path.
func ParseLocation(loc string) (Location, error) {
	switch {
	case loc == "" || loc == Stdio:
		return Location{Kind: KindStdio}, nil

	case strings.HasPrefix(loc, s3Scheme):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, s3Scheme), "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid s3 location %q, want s3://bucket/key", loc)
		}
		return Location{Kind: KindS3, Bucket: bucket, Key: key}, nil

	default:
		return Location{Kind: KindFile, Path: loc}, nil
	}
}

// Store dispatches reads and writes to the backend of each location.
// The S3 client is created on first use from MINIO_* environment variables.
type Store struct {
	Stdin  io.Reader
	Stdout io.Writer

	once  sync.Once
	s3    *minio.Client
	s3Err error
}

// New returns a Store bound to the process standard streams.
func New() *Store {
	return &Store{Stdin: os.Stdin, Stdout: os.Stdout}
}

// Read returns the full content at loc.
func (s *Store) Read(ctx context.Context, loc string) ([]byte, error) {
	l, err := ParseLocation(loc)
	if err != nil {
		return nil, err
	}

	switch l.Kind {
	case KindStdio:
		return io.ReadAll(s.Stdin)

	case KindS3:
		client, err := s.client()
		if err != nil {
			return nil, err
		}
		obj, err := client.GetObject(ctx, l.Bucket, l.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("get s3://%s/%s: %w", l.Bucket, l.Key, err)
		}
		defer func() { _ = obj.Close() }()

		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, fmt.Errorf("read s3://%s/%s: %w", l.Bucket, l.Key, err)
		}
		return data, nil

	default:
		return os.ReadFile(l.Path)
	}
}

// Write stores data at loc, creating parent directories or the bucket when missing.
func (s *Store) Write(ctx context.Context, loc string, data []byte, contentType string) error {
	l, err := ParseLocation(loc)
	if err != nil {
		return err
	}

	switch l.Kind {
	case KindStdio:
		_, err := s.Stdout.Write(data)
		return err

	case KindS3:
		client, err := s.client()
		if err != nil {
			return err
		}
		if err := ensureBucket(ctx, client, l.Bucket); err != nil {
			return err
		}

		_, err = client.PutObject(ctx, l.Bucket, l.Key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", l.Bucket, l.Key, err)
		}

		log.Debug().
			Str("bucket", l.Bucket).
			Str("key", l.Key).
			Int("bytes", len(data)).
			Msg("Object stored")
		return nil

	default:
		if dir := filepath.Dir(l.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		return os.WriteFile(l.Path, data, 0644)
	}
}

// Exists reports whether loc already holds data. Standard output never does.
func (s *Store) Exists(ctx context.Context, loc string) (bool, error) {
	l, err := ParseLocation(loc)
	if err != nil {
		return false, err
	}

	switch l.Kind {
	case KindStdio:
		return false, nil

	case KindS3:
		client, err := s.client()
		if err != nil {
			return false, err
		}
		_, err = client.StatObject(ctx, l.Bucket, l.Key, minio.StatObjectOptions{})
		if err == nil {
			return true, nil
		}
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return false, nil
		}
		return false, fmt.Errorf("stat s3://%s/%s: %w", l.Bucket, l.Key, err)

	default:
		info, err := os.Stat(l.Path)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return info.Size() > 0, nil
	}
}

func (s *Store) client() (*minio.Client, error) {
	s.once.Do(func() {
		s.s3, s.s3Err = newS3Client()
	})

	return s.s3, s.s3Err
}

func newS3Client() (*minio.Client, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("missing one or more required environment variables: MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	log.Debug().Str("endpoint", endpoint).Msg("S3 client created")
	return client, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}

	log.Info().Str("bucket", bucket).Msg("Bucket created")
	return nil
}
