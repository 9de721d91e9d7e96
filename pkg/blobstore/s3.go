package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client S3Store calls directly.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Uploader is satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store stores objects in an AWS S3 bucket. Puts go through the transfer
// manager so large TIFF variants are sent as multipart uploads.
type S3Store struct {
	client   S3API
	uploader Uploader
	bucket   string
	pageSize int32
}

func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return NewS3StoreFromAPI(client, manager.NewUploader(client), bucket)
}

func NewS3StoreFromAPI(client S3API, uploader Uploader, bucket string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		pageSize: 1000,
	}
}

func (s *S3Store) Bucket() string {
	return s.bucket
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.Tagging != "" {
		input.Tagging = aws.String(opts.Tagging)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("error uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(fmt.Sprintf("%s/%s", s.bucket, srcKey)),
		Key:        aws.String(dstKey),
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.Tagging != "" {
		input.Tagging = aws.String(opts.Tagging)
		input.TaggingDirective = types.TaggingDirectiveReplace
	}
	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("error copying %s to %s in %s: %w", srcKey, dstKey, s.bucket, err)
	}
	return nil
}

func (s *S3Store) ListPage(ctx context.Context, prefix, token string) (Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, err
	}
	page := Page{Objects: make([]Object, 0, len(out.Contents))}
	for _, o := range out.Contents {
		page.Objects = append(page.Objects, Object{
			Key:          aws.ToString(o.Key),
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}
