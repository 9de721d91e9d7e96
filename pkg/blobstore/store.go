package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ACLPublicRead is the canned ACL every published object carries.
const ACLPublicRead = "public-read"

// PutOptions describe how an object is stored.
type PutOptions struct {
	ContentType string
	ACL         string
	// Tagging is a URL query encoded tag set, e.g. "PROJECT=CDCS&STAGE=prod".
	Tagging string
}

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Page is one listing response. NextToken is empty on the last page.
type Page struct {
	Objects   []Object
	NextToken string
}

// Store is a single bucket in an object store.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error
	ListPage(ctx context.Context, prefix, token string) (Page, error)
}

// Walk calls fn for every object under prefix, following continuation tokens
// until the listing is exhausted.
func Walk(ctx context.Context, store Store, prefix string, fn func(Object) error) error {
	token := ""
	for {
		page, err := store.ListPage(ctx, prefix, token)
		if err != nil {
			return fmt.Errorf("error listing %s/%s: %w", store.Bucket(), prefix, err)
		}
		for _, o := range page.Objects {
			if err := fn(o); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// PutFile uploads the local file at path to key.
func PutFile(ctx context.Context, store Store, key, path string, opts PutOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Put(ctx, key, f, opts)
}
