package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores objects in an S3 compatible server through minio-go. It
// backs local and dev manifolds that do not run against AWS.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	pageSize int
}

func NewMinioStore(endpoint, accessKey, secretKey string, secure bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating minio client for %s: %w", endpoint, err)
	}
	return &MinioStore{client: client, bucket: bucket, pageSize: 1000}, nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	tags, err := parseTagging(opts.Tagging)
	if err != nil {
		return err
	}
	putOpts := minio.PutObjectOptions{
		ContentType: opts.ContentType,
		UserTags:    tags,
	}
	if opts.ACL != "" {
		putOpts.UserMetadata = map[string]string{"x-amz-acl": opts.ACL}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, -1, putOpts); err != nil {
		return fmt.Errorf("error uploading %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.getError(key, err)
	}
	defer obj.Close()
	if _, err := obj.Stat(); err != nil {
		return nil, s.getError(key, err)
	}
	return io.ReadAll(obj)
}

func (s *MinioStore) getError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("error getting %s/%s: %w", s.bucket, key, err)
}

func (s *MinioStore) Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	tags, err := parseTagging(opts.Tagging)
	if err != nil {
		return err
	}
	dst := minio.CopyDestOptions{
		Bucket:      s.bucket,
		Object:      dstKey,
		UserTags:    tags,
		ReplaceTags: len(tags) > 0,
	}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("error copying %s to %s in %s: %w", srcKey, dstKey, s.bucket, err)
	}
	return nil
}

// ListPage reads at most pageSize objects after token, which is the last key of
// the previous page.
func (s *MinioStore) ListPage(ctx context.Context, prefix, token string) (Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var page Page
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: token,
		MaxKeys:    s.pageSize,
	})
	for o := range objects {
		if o.Err != nil {
			return Page{}, o.Err
		}
		page.Objects = append(page.Objects, Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		if len(page.Objects) == s.pageSize {
			page.NextToken = o.Key
			break
		}
	}
	return page, nil
}

func parseTagging(tagging string) (map[string]string, error) {
	if tagging == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(tagging)
	if err != nil {
		return nil, fmt.Errorf("invalid tagging %q: %w", tagging, err)
	}
	tags := make(map[string]string, len(values))
	for k := range values {
		tags[k] = values.Get(k)
	}
	return tags, nil
}
