package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk_FollowsContinuation(t *testing.T) {
	store := NewMemoryStore("bucket", 7)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("tmpl/lib/%03d.png", i), strings.NewReader("x"), PutOptions{}))
	}
	require.NoError(t, store.Put(ctx, "other/lib/a.png", strings.NewReader("x"), PutOptions{}))

	var keys []string
	err := Walk(ctx, store, "tmpl/lib/", func(o Object) error {
		keys = append(keys, o.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, keys, 50)
	assert.Equal(t, 8, store.ListCalls())
}

func TestWalk_StopsOnCallbackError(t *testing.T) {
	store := NewMemoryStore("bucket", 2)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, k, strings.NewReader(k), PutOptions{}))
	}
	stop := errors.New("stop")
	err := Walk(ctx, store, "", func(o Object) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("bucket", 0)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	opts := PutOptions{ContentType: "application/json", ACL: ACLPublicRead, Tagging: "PROJECT=CDCS"}
	require.NoError(t, store.Put(ctx, "k", strings.NewReader("[]"), opts))
	require.NoError(t, store.Copy(ctx, "k", "k2", PutOptions{ACL: ACLPublicRead}))
	o, ok := store.Object("k2")
	require.True(t, ok)
	assert.Equal(t, "[]", string(o.Data))
	assert.Equal(t, "application/json", o.Options.ContentType)

	store.FailPut("bad", errors.New("boom"))
	assert.Error(t, store.Put(ctx, "bad", strings.NewReader(""), opts))
}

type mockS3 struct {
	pages   []*s3.ListObjectsV2Output
	tokens  []string
	objects map[string]string
	copies  []*s3.CopyObjectInput
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (m *mockS3) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.copies = append(m.copies, params)
	return &s3.CopyObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.tokens = append(m.tokens, aws.ToString(params.ContinuationToken))
	page := m.pages[0]
	m.pages = m.pages[1:]
	return page, nil
}

type mockUploader struct {
	inputs []*s3.PutObjectInput
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	m.inputs = append(m.inputs, input)
	return &manager.UploadOutput{}, nil
}

func TestS3Store(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, api *mockS3, uploader *mockUploader, store *S3Store){
		"list follows continuation tokens": testS3List,
		"missing key maps to ErrNotFound":  testS3Get,
		"put forwards acl and tagging":     testS3Put,
		"copy replaces tags":               testS3Copy,
	} {
		t.Run(scenario, func(t *testing.T) {
			api := &mockS3{objects: map[string]string{"present.json": "{}"}}
			uploader := &mockUploader{}
			fn(t, api, uploader, NewS3StoreFromAPI(api, uploader, "janelia-flylight-color-depth"))
		})
	}
}

func testS3List(t *testing.T, api *mockS3, _ *mockUploader, store *S3Store) {
	api.pages = []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("a"), Size: aws.Int64(1)}, {Key: aws.String("b")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("token-1"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("c")}},
			IsTruncated: aws.Bool(false),
		},
	}
	var keys []string
	require.NoError(t, Walk(context.Background(), store, "p/", func(o Object) error {
		keys = append(keys, o.Key)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []string{"", "token-1"}, api.tokens)
}

func testS3Get(t *testing.T, _ *mockS3, _ *mockUploader, store *S3Store) {
	data, err := store.Get(context.Background(), "present.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = store.Get(context.Background(), "absent.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testS3Put(t *testing.T, _ *mockS3, uploader *mockUploader, store *S3Store) {
	err := store.Put(context.Background(), "x/y.png", strings.NewReader("png"), PutOptions{
		ContentType: "image/png",
		ACL:         ACLPublicRead,
		Tagging:     "PROJECT=CDCS&STAGE=prod",
	})
	require.NoError(t, err)
	require.Len(t, uploader.inputs, 1)
	in := uploader.inputs[0]
	assert.Equal(t, "janelia-flylight-color-depth", aws.ToString(in.Bucket))
	assert.Equal(t, types.ObjectCannedACLPublicRead, in.ACL)
	assert.Equal(t, "image/png", aws.ToString(in.ContentType))
	assert.Equal(t, "PROJECT=CDCS&STAGE=prod", aws.ToString(in.Tagging))
}

func testS3Copy(t *testing.T, api *mockS3, _ *mockUploader, store *S3Store) {
	require.NoError(t, store.Copy(context.Background(), "src.json", "dst.json", PutOptions{Tagging: "PROJECT=CDCS"}))
	require.Len(t, api.copies, 1)
	assert.Equal(t, "janelia-flylight-color-depth/src.json", aws.ToString(api.copies[0].CopySource))
	assert.Equal(t, types.TaggingDirectiveReplace, api.copies[0].TaggingDirective)
}

func TestParseTagging(t *testing.T) {
	tags, err := parseTagging("PROJECT=CDCS&STAGE=dev&DEVELOPER=jdoe")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PROJECT": "CDCS", "STAGE": "dev", "DEVELOPER": "jdoe"}, tags)

	tags, err = parseTagging("")
	require.NoError(t, err)
	assert.Nil(t, tags)
}
