// Package storage provides persistent data storage for the prediction engine.
// It uses BoltDB as the underlying storage engine to keep the draw history,
// the recorded predictions and the hybrid model weights.
//
// Keys are prefixed by category so a cursor seek yields a category's records
// in date order.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loto-predictor/internal/draws"
	"loto-predictor/internal/ml"

	"go.etcd.io/bbolt"
)

const (
	drawsBucket       = "draws"       // Bucket name for recorded draws
	predictionsBucket = "predictions" // Bucket name for recorded predictions
	weightsBucket     = "weights"     // Bucket name for the hybrid weights

	weightsKey = "hybrid_model_weights"
	keyDate    = "20060102"

	// DBFile is the database file name inside the data path.
	DBFile = "loto-data.db"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

var errStoreClosed = errors.New("store closed")

// Store provides persistent storage for draws, predictions and weights using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It creates the directory when missing, opens the database and its buckets.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data path: %w", err)
	}
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{drawsBucket, predictionsBucket, weightsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func drawKey(d draws.Draw) []byte {
	return []byte(fmt.Sprintf("%s_%s", d.CategoryID, d.Date.UTC().Format(keyDate)))
}

// StoreDraw validates and stores a draw. A draw already recorded for the same
// category and day is replaced.
func (s *Store) StoreDraw(d draws.Draw) error {
	return s.StoreDraws([]draws.Draw{d})
}

// StoreDraws stores several draws in one transaction. Nothing is written if
// any draw is invalid.
func (s *Store) StoreDraws(list []draws.Draw) error {
	for _, d := range list {
		if d.CategoryID == "" {
			return fmt.Errorf("draw %s: missing category", d.ID)
		}
		if err := d.Validate(); err != nil {
			return err
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(drawsBucket))
		for _, d := range list {
			d.Date = draws.Day(d.Date)
			if d.ID == "" {
				d.ID = string(drawKey(d))
			}
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("marshal draw: %w", err)
			}
			if err := b.Put(drawKey(d), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDrawHistory returns the draws of a category, most recent first. An empty
// category returns every draw.
func (s *Store) GetDrawHistory(categoryID string) ([]draws.Draw, error) {
	var out []draws.Draw
	err := s.scan(drawsBucket, categoryID, func(_, v []byte) error {
		var d draws.Draw
		if err := json.Unmarshal(v, &d); err != nil {
			return nil // Skip malformed records
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draws.RecentFirst(out), nil
}

// GetDraw returns the draw of a category on the given day.
func (s *Store) GetDraw(categoryID string, day time.Time) (draws.Draw, error) {
	var d draws.Draw
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(drawsBucket)).Get(drawKey(draws.Draw{CategoryID: categoryID, Date: day}))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &d)
	})
	return d, err
}

// CountDraws returns the number of stored draws per category.
func (s *Store) CountDraws() (map[string]int, error) {
	counts := make(map[string]int)
	err := s.scan(drawsBucket, "", func(_, v []byte) error {
		var d draws.Draw
		if err := json.Unmarshal(v, &d); err == nil {
			counts[d.CategoryID]++
		}
		return nil
	})
	return counts, err
}

// LoadWeights implements ml.WeightStore.
func (s *Store) LoadWeights() (ml.Weights, bool, error) {
	if s.db == nil {
		return ml.Weights{}, false, errStoreClosed
	}
	var w ml.Weights
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(weightsBucket)).Get([]byte(weightsKey))
		if v == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(v, &w); err != nil {
			return fmt.Errorf("unmarshal weights: %w", err)
		}
		return nil
	})
	if err != nil {
		return ml.Weights{}, false, err
	}
	return w, found, nil
}

// PersistWeights implements ml.WeightStore.
func (s *Store) PersistWeights(w ml.Weights) error {
	if s.db == nil {
		return errStoreClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("marshal weights: %w", err)
		}
		return tx.Bucket([]byte(weightsBucket)).Put([]byte(weightsKey), data)
	})
}

// ClearOldData deletes draws and predictions dated before cutoff and returns
// how many records were removed.
func (s *Store) ClearOldData(cutoff time.Time) (int, error) {
	cutoff = draws.Day(cutoff)
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{drawsBucket, predictionsBucket} {
			b := tx.Bucket([]byte(name))
			var stale [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var dated struct {
					Date     time.Time `json:"date"`
					DrawDate time.Time `json:"draw_date"`
				}
				if err := json.Unmarshal(v, &dated); err != nil {
					return nil
				}
				at := dated.Date
				if at.IsZero() {
					at = dated.DrawDate
				}
				if !at.IsZero() && at.Before(cutoff) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(stale)
		}
		return nil
	})
	return removed, err
}

// scan walks the records of a bucket whose key starts with the category prefix.
func (s *Store) scan(bucketName, categoryID string, fn func(k, v []byte) error) error {
	if s.db == nil {
		return errStoreClosed
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()

		var prefix []byte
		if categoryID != "" {
			prefix = []byte(categoryID + "_")
		}

		k, v := c.First()
		if len(prefix) > 0 {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}
