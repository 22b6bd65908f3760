// Package checkpoint persists per-K sweep results in a bolt database
// so an interrupted model-selection sweep can resume without refitting.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// sweepBucket is the bucket name for all sweep results.
var sweepBucket = []byte("sweep")

// Result stores the outcome of one candidate cluster count.
type Result struct {
	K       int     `json:"k"`
	Score   float64 `json:"score"`
	LogProb float64 `json:"logProb"`
	Labels  []int   `json:"labels"`
}

// SweepStore saves and loads per-K results. A nil database makes every
// operation a no-op.
type SweepStore struct {
	db *bolt.DB
}

// NewSweepStore creates a store backed by db (which may be nil).
func NewSweepStore(db *bolt.DB) *SweepStore {
	return &SweepStore{db: db}
}

func key(k int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k))
	return b
}

// Save stores the result for its K, overwriting any previous value.
func (s *SweepStore) Save(r *Result) error {
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		log.Error("Error serializing sweep result", err)
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sweepBucket)
		if err != nil {
			return err
		}
		return b.Put(key(r.K), data)
	})
	if err != nil {
		log.Error("Error saving sweep result", err)
	}
	return err
}

// Load returns the stored result for k, or nil if there is none.
func (s *SweepStore) Load(k int) (*Result, error) {
	if s.db == nil {
		return nil, nil
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sweepBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key(k)); v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	log.Noticef("Found checkpointed sweep result for K=%d (score=%v)", r.K, r.Score)
	return &r, nil
}

// Keys returns the candidate counts with stored results.
func (s *SweepStore) Keys() ([]int, error) {
	if s.db == nil {
		return nil, nil
	}
	var keys []int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sweepBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			keys = append(keys, int(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	return keys, err
}
