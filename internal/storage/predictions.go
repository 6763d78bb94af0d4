package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"loto-predictor/internal/draws"
	"loto-predictor/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

func predictionKey(r ml.PredictionRecord) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", r.CategoryID, r.DrawDate.UTC().Format(keyDate), r.ID))
}

// RecordPrediction stores a generated prediction for the draw of categoryID on
// drawDate and returns its identifier.
func (s *Store) RecordPrediction(out ml.Output, categoryID string, drawDate time.Time) (string, error) {
	record := ml.PredictionRecord{
		ID:         uuid.NewString(),
		CategoryID: categoryID,
		DrawDate:   draws.Day(drawDate),
		RecordedAt: time.Now().UTC(),
		Output:     out,
	}
	if s.db == nil {
		return "", errStoreClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		return tx.Bucket([]byte(predictionsBucket)).Put(predictionKey(record), data)
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// GetPastPredictions returns the recorded predictions of a category, oldest
// first. An empty category returns every prediction.
func (s *Store) GetPastPredictions(categoryID string) ([]ml.PredictionRecord, error) {
	var records []ml.PredictionRecord
	err := s.scan(predictionsBucket, categoryID, func(_, v []byte) error {
		var r ml.PredictionRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return nil
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].DrawDate.Equal(records[j].DrawDate) {
			return records[i].DrawDate.Before(records[j].DrawDate)
		}
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})
	return records, nil
}

// UpdatePredictionOutcome sets the actual winning numbers of a stored prediction.
func (s *Store) UpdatePredictionOutcome(id string, actual []int) error {
	if err := draws.ValidateNumbers(actual); err != nil {
		return err
	}
	if s.db == nil {
		return errStoreClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()
		suffix := "_" + id
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !strings.HasSuffix(string(k), suffix) {
				continue
			}
			var r ml.PredictionRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal prediction: %w", err)
			}
			r.Actual = append([]int(nil), actual...)
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal prediction: %w", err)
			}
			return b.Put(append([]byte(nil), k...), data)
		}
		return fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	})
}

// ResolveOutcomes fills the actual numbers of a category's open predictions
// whose draw has been recorded. It returns how many predictions were resolved.
func (s *Store) ResolveOutcomes(categoryID string) (int, error) {
	if s.db == nil {
		return 0, errStoreClosed
	}
	resolved := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		preds := tx.Bucket([]byte(predictionsBucket))
		drawsB := tx.Bucket([]byte(drawsBucket))

		var prefix []byte
		if categoryID != "" {
			prefix = []byte(categoryID + "_")
		}

		updates := make(map[string][]byte)
		c := preds.Cursor()
		k, v := c.First()
		if len(prefix) > 0 {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r ml.PredictionRecord
			if err := json.Unmarshal(v, &r); err != nil || r.HasOutcome() {
				continue
			}
			raw := drawsB.Get(drawKey(draws.Draw{CategoryID: r.CategoryID, Date: r.DrawDate}))
			if raw == nil {
				continue
			}
			var d draws.Draw
			if err := json.Unmarshal(raw, &d); err != nil {
				continue
			}
			r.Actual = append([]int(nil), d.Winning...)
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal prediction: %w", err)
			}
			updates[string(k)] = data
		}

		for key, data := range updates {
			if err := preds.Put([]byte(key), data); err != nil {
				return err
			}
		}
		resolved = len(updates)
		return nil
	})
	return resolved, err
}
