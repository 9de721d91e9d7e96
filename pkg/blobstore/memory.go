package blobstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryObject is an object held by MemoryStore.
type MemoryObject struct {
	Data    []byte
	Options PutOptions
}

// MemoryStore is an in-process Store used by tests and dry runs. Listings are
// split into pages of PageSize objects.
type MemoryStore struct {
	mutex    sync.RWMutex
	bucket   string
	objects  map[string]MemoryObject
	pageSize int
	failPut  map[string]error
	lists    int
}

func NewMemoryStore(bucket string, pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &MemoryStore{
		bucket:   bucket,
		objects:  map[string]MemoryObject{},
		pageSize: pageSize,
		failPut:  map[string]error{},
	}
}

func (m *MemoryStore) Bucket() string {
	return m.bucket
}

// FailPut makes every later Put or Copy to key return err.
func (m *MemoryStore) FailPut(key string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failPut[key] = err
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.failPut[key]; err != nil {
		return err
	}
	m.objects[key] = MemoryObject{Data: data, Options: opts}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), o.Data...), nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.failPut[dstKey]; err != nil {
		return err
	}
	o, ok := m.objects[srcKey]
	if !ok {
		return errors.Join(ErrNotFound, errors.New(srcKey))
	}
	if opts.ContentType == "" {
		opts.ContentType = o.Options.ContentType
	}
	m.objects[dstKey] = MemoryObject{Data: o.Data, Options: opts}
	return nil
}

func (m *MemoryStore) ListPage(ctx context.Context, prefix, token string) (Page, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.lists++
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page Page
	for _, k := range keys {
		if len(page.Objects) == m.pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, Object{
			Key:          k,
			Size:         int64(len(m.objects[k].Data)),
			LastModified: time.Time{},
		})
	}
	return page, nil
}

// Object returns the stored object at key.
func (m *MemoryStore) Object(key string) (MemoryObject, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys returns every stored key, sorted.
func (m *MemoryStore) Keys() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListCalls returns the number of ListPage calls served.
func (m *MemoryStore) ListCalls() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lists
}
