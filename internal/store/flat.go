package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edebt/syncengine/internal/schema"
	"github.com/spf13/afero"
)

const flatVersion = 1

// flatFile is the on-disk layout of the fallback cache.
type flatFile struct {
	Version    int                                  `json:"version"`
	Dirty      bool                                 `json:"dirty"`
	Namespaces map[schema.Collection]*flatNamespace `json:"namespaces"`
}

// flatNamespace holds one collection and the time (unix millis) it was last written.
type flatNamespace struct {
	Timestamp int64 `json:"timestamp"`
	Data      []Doc `json:"data"`
}

func newFlatFile() *flatFile {
	return &flatFile{Version: flatVersion, Namespaces: map[schema.Collection]*flatNamespace{}}
}

// flatBackend is the whole-blob fallback cache. It is only writable through
// Tx when it is the sole backend.
type flatBackend struct {
	fs       afero.Fs
	path     string
	writable bool
	now      func() time.Time

	mu sync.Mutex
}

func newFlatBackend(fsys afero.Fs, path string) *flatBackend {
	return &flatBackend{fs: fsys, path: path, now: time.Now}
}

func (f *flatBackend) name() string { return "flat" }

func (f *flatBackend) close() error { return nil }

// init checks the cache can be read and its directory created.
func (f *flatBackend) init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create fallback directory: %w", err)
	}
	_, err := f.load()
	return err
}

// load reads the cache. A missing file is an empty cache. Callers hold mu.
func (f *flatBackend) load() (*flatFile, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newFlatFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback cache %s: %w", f.path, err)
	}
	ff := newFlatFile()
	if err := json.Unmarshal(data, ff); err != nil {
		return nil, fmt.Errorf("failed to parse fallback cache %s: %w", f.path, err)
	}
	if ff.Namespaces == nil {
		ff.Namespaces = map[schema.Collection]*flatNamespace{}
	}
	return ff, nil
}

// save rewrites the whole cache through a temp file and rename. Callers hold mu.
func (f *flatBackend) save(ff *flatFile) error {
	data, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("failed to marshal fallback cache: %w", err)
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create fallback directory: %w", err)
	}

	tmp := f.path + ".tmp"
	file, err := f.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace fallback cache: %w", err)
	}
	return nil
}

func (f *flatBackend) view(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, err := f.load()
	if err != nil {
		return err
	}
	return fn(&flatTx{file: ff})
}

func (f *flatBackend) update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, err := f.load()
	if err != nil {
		return err
	}
	tx := &flatTx{file: ff, writable: f.writable, touched: map[schema.Collection]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.touched) == 0 {
		return nil
	}
	stamp := f.now().UnixMilli()
	for coll := range tx.touched {
		ff.Namespaces[coll].Timestamp = stamp
	}
	ff.Dirty = true
	return f.save(ff)
}

// snapshot replaces the whole cache with docs and clears the dirty flag.
func (f *flatBackend) snapshot(docs map[schema.Collection][]Doc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff := newFlatFile()
	stamp := f.now().UnixMilli()
	for coll, d := range docs {
		ff.Namespaces[coll] = &flatNamespace{Timestamp: stamp, Data: d}
	}
	return f.save(ff)
}

// read returns the cache as stored.
func (f *flatBackend) read() (*flatFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// markClean clears the dirty flag.
func (f *flatBackend) markClean() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, err := f.load()
	if err != nil {
		return err
	}
	if !ff.Dirty {
		return nil
	}
	ff.Dirty = false
	return f.save(ff)
}

type flatTx struct {
	file     *flatFile
	writable bool
	touched  map[schema.Collection]bool
}

func (t *flatTx) ns(coll schema.Collection, create bool) *flatNamespace {
	ns := t.file.Namespaces[coll]
	if ns == nil && create {
		ns = &flatNamespace{}
		t.file.Namespaces[coll] = ns
	}
	return ns
}

func (t *flatTx) write(coll schema.Collection) (*flatNamespace, error) {
	if !t.writable {
		return nil, ErrReadOnly
	}
	t.touched[coll] = true
	return t.ns(coll, true), nil
}

func (t *flatTx) Get(coll schema.Collection, key string) (Doc, error) {
	if err := checkCollection(coll); err != nil {
		return Doc{}, err
	}
	if ns := t.ns(coll, false); ns != nil {
		for _, d := range ns.Data {
			if d.Key == key {
				return d, nil
			}
		}
	}
	return Doc{}, fmt.Errorf("%s %s: %w", coll, key, ErrNotFound)
}

func (t *flatTx) GetAll(coll schema.Collection) ([]Doc, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	docs := []Doc{}
	if ns := t.ns(coll, false); ns != nil {
		docs = append(docs, ns.Data...)
	}
	sortDocs(docs)
	return docs, nil
}

func (t *flatTx) GetByIndex(coll schema.Collection, index, _ string) ([]Doc, error) {
	if err := checkIndex(coll, index); err != nil {
		return nil, err
	}
	return nil, ErrIndexUnsupported
}

func (t *flatTx) Put(coll schema.Collection, doc Doc) error {
	if err := checkDoc(coll, doc); err != nil {
		return err
	}
	ns, err := t.write(coll)
	if err != nil {
		return err
	}
	for i := range ns.Data {
		if ns.Data[i].Key == doc.Key {
			ns.Data[i] = doc
			return nil
		}
	}
	ns.Data = append(ns.Data, doc)
	return nil
}

func (t *flatTx) Delete(coll schema.Collection, key string) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	ns, err := t.write(coll)
	if err != nil {
		return err
	}
	for i := range ns.Data {
		if ns.Data[i].Key == key {
			ns.Data = append(ns.Data[:i], ns.Data[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *flatTx) Clear(coll schema.Collection) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	ns, err := t.write(coll)
	if err != nil {
		return err
	}
	ns.Data = nil
	return nil
}
