package cache

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/goprove/goprove/proof"
)

var proofsBucket = []byte("proofs")

// BoltStore persists certificates in a single-file key/value database,
// one bucket, JSON values. Suited to large caches where one file per
// proof gets unwieldy.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string, logger zerolog.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(proofsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating proofs bucket")
	}
	return &BoltStore{db: db, logger: logger}, nil
}

func (s *BoltStore) Get(key string) (*proof.Certificate, bool) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(proofsBucket).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, false
	}
	cert, err := proof.Parse(data)
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("dropping corrupt cache entry")
		return nil, false
	}
	return cert, true
}

func (s *BoltStore) Put(key string, cert *proof.Certificate) {
	data, err := cert.Encode()
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
		return
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(proofsBucket).Put([]byte(key), data)
	})
	if err != nil {
		s.logger.Debug().Str("key", key).Err(err).Msg("cache write skipped")
	}
}

func (s *BoltStore) Close() error { return s.db.Close() }
