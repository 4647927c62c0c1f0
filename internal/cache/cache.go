// Package cache keeps converted representations on disk, encrypted so that
// only someone who already knows an object's identity can read what was
// extracted from it.
//
// Entries live at <directory>/<hash of censored handle>/<output type>. Each
// entry is the JSON encoding of the representation, gzip-compressed and
// sealed with NaCl secretbox under a key stretched from the crunched
// censored handle with PBKDF2, salted with the instance secret.
package cache

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"

	"github.com/custodia-labs/datascanner/internal/connectors/base"
	"github.com/custodia-labs/datascanner/internal/conversions"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("cache")

// Ensure Cache implements the interface.
var _ driven.Representer = (*Cache)(nil)

// Key derivation parameters.
const (
	Iterations = 100000
	keySize    = 32
	nonceSize  = 24
)

// Converter produces representations on a cache miss.
type Converter interface {
	Convert(ctx context.Context, res driven.Resource, ot domain.OutputType,
		mimeOverride string) (conversions.SingleResult, error)
}

// Cache is a conversion cache rooted at one directory. A Cache without a
// directory converts every time and stores nothing.
type Cache struct {
	dir       string
	secret    string
	converter Converter
	codec     *conversions.Codec
}

// New creates a Cache. A configured directory requires a secret.
func New(settings domain.CacheSettings, converter Converter, codec *conversions.Codec) (*Cache, error) {
	if settings.Enabled() && settings.Secret == "" {
		return nil, fmt.Errorf("%w: %s is set but %s is not",
			domain.ErrInvalidInput, domain.KeyCacheDirectory, domain.KeyCacheSecret)
	}
	return &Cache{
		dir:       settings.Directory,
		secret:    settings.Secret,
		converter: converter,
		codec:     codec,
	}, nil
}

// Enabled reports whether representations are written to disk.
func (c *Cache) Enabled() bool { return c.dir != "" }

// For returns the cache manager for res.
func (c *Cache) For(res driven.Resource) *Manager {
	censored := res.Handle().Censor()
	return &Manager{cache: c, res: res, handle: censored, crunched: domain.Crunch(censored)}
}

// Manager is the set of cached representations of one Resource.
type Manager struct {
	cache    *Cache
	res      driven.Resource
	handle   driven.Handle
	crunched string
	key      base.Lazy[*[keySize]byte]
}

// Dir returns the directory holding the Resource's entries, or "" when the
// cache is disabled.
func (m *Manager) Dir() string {
	if !m.cache.Enabled() {
		return ""
	}
	return filepath.Join(m.cache.dir, domain.HashCrunched(m.crunched))
}

func (m *Manager) box() *[keySize]byte {
	key, _ := m.key.Get(func() (*[keySize]byte, error) {
		return StretchKey(m.crunched, m.cache.secret), nil
	})
	return key
}

// LastModified returns the timestamp of the Resource, or of the nearest
// parent that keeps one. The zero time means none does.
func (m *Manager) LastModified(ctx context.Context) (time.Time, error) {
	res := m.res
	for res != nil {
		if tr, ok := res.(driven.TimestampedResource); ok {
			return tr.LastModified(ctx)
		}
		parent := res.Handle().Source().Handle()
		if parent == nil {
			break
		}
		res = parent.Follow(res.StateManager())
	}
	return time.Time{}, nil
}

// Representation returns the cache entry for ot.
func (m *Manager) Representation(ot domain.OutputType) *Representation {
	return &Representation{manager: m, ot: ot}
}

// Representation is one cache entry.
type Representation struct {
	manager *Manager
	ot      domain.OutputType
}

// Path returns the entry's file, or "" when the cache is disabled.
func (r *Representation) Path() string {
	dir := r.manager.Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, string(r.ot))
}

// Fresh reports whether the entry exists and is no older than the
// Resource.
func (r *Representation) Fresh(ctx context.Context) (bool, error) {
	p := r.Path()
	if p == "" {
		return false, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	lm, err := r.manager.LastModified(ctx)
	if err != nil {
		return false, err
	}
	return lm.IsZero() || !info.ModTime().Before(lm), nil
}

// Get returns the cached representation. A missing or stale entry is
// rebuilt when create is set and is an error wrapping domain.ErrNoConversion
// otherwise. cached reports whether the value came from disk.
func (r *Representation) Get(ctx context.Context, create bool, mimeOverride string) (v any, cached bool, err error) {
	fresh, err := r.Fresh(ctx)
	if err != nil {
		return nil, false, err
	}
	if !fresh {
		log.Debug("cache for %s, type %s does not exist or is stale", r.manager.handle, r.ot)
		if !create {
			return nil, false, fmt.Errorf("%w: no cached %s for %s", domain.ErrNoConversion, r.ot, r.manager.handle)
		}
		v, err := r.Create(ctx, mimeOverride)
		return v, false, err
	}

	log.Debug("returning cache for %s, type %s", r.manager.handle, r.ot)
	v, err = r.read()
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Create converts the Resource and, when the cache is enabled, stores the
// result.
func (r *Representation) Create(ctx context.Context, mimeOverride string) (any, error) {
	m := r.manager
	sr, err := m.cache.converter.Convert(ctx, m.res, r.ot, mimeOverride)
	if err != nil {
		return nil, err
	}
	if p := r.Path(); p != "" {
		log.Debug("saving cache for %s, type %s", m.handle, r.ot)
		if err := r.write(p, sr.Value); err != nil {
			return nil, err
		}
	}
	return sr.Value, nil
}

func (r *Representation) write(p string, v any) error {
	raw, err := r.manager.cache.codec.Marshal(r.ot, v)
	if err != nil {
		return err
	}
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	sealed, err := Seal(compressed.Bytes(), r.manager.box())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+string(r.ot)+"-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (r *Representation) read() (any, error) {
	sealed, err := os.ReadFile(r.Path())
	if err != nil {
		return nil, err
	}
	compressed, err := Open(sealed, r.manager.box())
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: cache entry: %v", domain.ErrDeserialisation, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: cache entry: %v", domain.ErrDeserialisation, err)
	}
	return r.manager.cache.codec.Unmarshal(r.ot, raw)
}

// StretchKey derives a secretbox key from password, salted with secret.
func StretchKey(password, secret string) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], pbkdf2.Key([]byte(password), []byte(secret), Iterations, keySize, sha256.New))
	return &key
}

// Seal encrypts plaintext under key. The random nonce is prepended.
func Seal(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open reverses Seal.
func Open(sealed []byte, key *[keySize]byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: cache entry is truncated", domain.ErrDeserialisation)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: cache entry cannot be decrypted", domain.ErrDeserialisation)
	}
	return plaintext, nil
}

// Represent returns the representation ot of res, reading a fresh entry
// from disk or converting and storing it.
func (c *Cache) Represent(ctx context.Context, res driven.Resource, ot domain.OutputType,
	mimeOverride string) (any, bool, error) {
	return c.For(res).Representation(ot).Get(ctx, true, mimeOverride)
}
