package checklist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig locates the checklist bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps the latest blob at checklists/<case>/current.json and an
// immutable copy per version next to it.
//
// The version check and the write are two calls, so concurrent writers to one
// case are not arbitrated here; the case service only lets the assigned actor
// write.
type MinIOStore struct {
	client *minio.Client
	bucket string
	clock  func() time.Time
}

func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket, clock: time.Now}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func currentKey(caseID string) string { return "checklists/" + caseID + "/current.json" }

func versionKey(caseID string, v int64) string {
	return fmt.Sprintf("checklists/%s/v%06d.json", caseID, v)
}

func (s *MinIOStore) Get(ctx context.Context, caseID string) (Blob, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, currentKey(caseID), minio.GetObjectOptions{})
	if err != nil {
		return Blob{}, mapMinIOErr(err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return Blob{}, mapMinIOErr(err)
	}
	var b Blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	return b, nil
}

func (s *MinIOStore) Put(ctx context.Context, b Blob, expectedVersion int64) (Blob, error) {
	var current int64
	switch existing, err := s.Get(ctx, b.CaseID); {
	case err == nil:
		current = existing.Version
	case !errors.Is(err, ErrNotFound):
		return Blob{}, err
	}
	if current != expectedVersion {
		return Blob{}, ErrVersionConflict
	}

	out, err := prepare(b, expectedVersion, s.clock())
	if err != nil {
		return Blob{}, err
	}
	body, err := json.Marshal(out)
	if err != nil {
		return Blob{}, err
	}

	opts := minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"case-id": out.CaseID, "version": fmt.Sprint(out.Version)},
	}
	if _, err := s.client.PutObject(ctx, s.bucket, versionKey(out.CaseID, out.Version), bytes.NewReader(body), int64(len(body)), opts); err != nil {
		return Blob{}, fmt.Errorf("failed to archive checklist: %w", err)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, currentKey(out.CaseID), bytes.NewReader(body), int64(len(body)), opts); err != nil {
		return Blob{}, fmt.Errorf("failed to write checklist: %w", err)
	}
	return out, nil
}

func mapMinIOErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("checklist store: %w", err)
}
