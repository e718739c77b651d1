package tcvm

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/tensorcore/tcvm/internal/artifact"
)

// ArtifactCache persists encoded artifacts to disk keyed by the SHA-256
// of their source bytes, mirroring the teacher's on-disk compilation
// cache directory layout adapted to tcvm's own persisted artifact format
// (spec.md §6 "Persisted artifact") instead of a compiled-machine-code
// blob.
type ArtifactCache struct {
	dir string
}

// NewArtifactCache creates (if needed) dir and returns a cache rooted
// there.
func NewArtifactCache(dir string) (*ArtifactCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ArtifactCache{dir: dir}, nil
}

// Key derives the cache key for the given source bytes (e.g. a
// serialized tensor-IR module prior to dispatch formation).
func Key(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

func (c *ArtifactCache) path(key string) string {
	return filepath.Join(c.dir, key+".tcvmart")
}

// Lookup returns the cached artifact for key, or (nil, false, nil) on a
// cache miss. A read error other than "not exist" is returned.
func (c *ArtifactCache) Lookup(key string) (*artifact.Artifact, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	a, err := artifact.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// Store encodes a and writes it to the cache under key.
func (c *ArtifactCache) Store(key string, a *artifact.Artifact) error {
	encoded, err := artifact.Encode(a)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), encoded, 0o644)
}
