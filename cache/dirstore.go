package cache

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/goprove/goprove/proof"
)

// DirStore persists certificates as one JSON file per key in a flat
// directory. Writes go through a temp file and an atomic rename so a
// crash mid-write never leaves a half-written entry; anything
// unreadable is a miss.
type DirStore struct {
	dir    string
	logger zerolog.Logger
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string, logger zerolog.Logger) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	return &DirStore{dir: dir, logger: logger}, nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *DirStore) Get(key string) (*proof.Certificate, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}
	cert, err := proof.Parse(data)
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("dropping corrupt cache entry")
		return nil, false
	}
	return cert, true
}

func (s *DirStore) Put(key string, cert *proof.Certificate) {
	data, err := cert.Encode()
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
		return
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
		return
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return
	}
	if err := os.Rename(name, s.path(key)); err != nil {
		os.Remove(name)
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
	}
}

func (s *DirStore) Close() error { return nil }
