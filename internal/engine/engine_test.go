package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"loto-predictor/internal/draws"
	"loto-predictor/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const category = "samedi-18h15-national"

type memSource struct {
	history []draws.Draw
	err     error
}

func (s *memSource) GetDrawHistory(string) ([]draws.Draw, error) {
	return s.history, s.err
}

type memSink struct {
	mu        sync.Mutex
	records   []ml.PredictionRecord
	recordErr error
	resolved  int
}

func (s *memSink) RecordPrediction(out ml.Output, categoryID string, drawDate time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return "", s.recordErr
	}
	id := string(rune('a' + len(s.records)))
	s.records = append(s.records, ml.PredictionRecord{ID: id, CategoryID: categoryID, DrawDate: drawDate, Output: out})
	return id, nil
}

func (s *memSink) GetPastPredictions(string) ([]ml.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ml.PredictionRecord(nil), s.records...), nil
}

func (s *memSink) ResolveOutcomes(string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved++
	return 0, nil
}

type capture struct {
	mu   sync.Mutex
	seen []Prediction
}

func (c *capture) Publish(p Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, p)
}

// weekly builds n Saturday draws, oldest last, rotating through the numbers.
func weekly(n int, fixed ...int) []draws.Draw {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) // a Saturday
	out := make([]draws.Draw, n)
	for i := range out {
		nums := fixed
		if len(nums) == 0 {
			base := (i*7)%86 + 1
			nums = []int{base, base + 1, base + 2, base + 3, base + 4}
		}
		out[i] = draws.Draw{
			ID:         "d",
			CategoryID: category,
			Date:       start.AddDate(0, 0, -7*i),
			Winning:    append([]int(nil), nums...),
		}
	}
	return out
}

func newHybrid() *ml.Hybrid {
	return ml.NewHybrid(
		ml.NewBoostModel(ml.DefaultBoostParams()),
		ml.NewForestModel(ml.DefaultForestParams()),
		ml.NewSequenceModel(ml.DefaultSequenceParams()),
		&ml.MemoryWeightStore{},
		ml.DefaultHybridConfig(),
		nil,
	)
}

func newEngine(history []draws.Draw, sink PredictionSink) *Engine {
	e := New(&memSource{history: history}, sink, newHybrid(), nil, DefaultOptions())
	e.now = func() time.Time { return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC) } // Monday
	return e
}

func TestGeneratePrediction_MinimumHistory(t *testing.T) {
	e := newEngine(weekly(9), &memSink{})
	_, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	require.Error(t, err)
	assert.True(t, IsInsufficientData(err))

	var insufficient *ml.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Need)

	e = newEngine(weekly(10), &memSink{})
	p, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, draws.ValidateNumbers(p.Numbers))
	assert.True(t, sort.IntsAreSorted(p.Numbers))
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}

func TestGeneratePrediction_UnknownModel(t *testing.T) {
	e := newEngine(weekly(20), &memSink{})
	_, err := e.GeneratePrediction(context.Background(), category, ml.Config{Model: "neural"})
	assert.ErrorIs(t, err, ml.ErrUnknownModel)
}

func TestGeneratePrediction_RecordsAndNotifies(t *testing.T) {
	sink := &memSink{}
	feed := &capture{}
	e := newEngine(weekly(30), sink)
	e.SetNotifier(feed)

	p, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "a", p.ID)
	assert.Equal(t, ml.ModelHybrid, p.Model)
	assert.Equal(t, category, p.CategoryID)
	// next Saturday after Monday 2024-06-03
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), p.DrawDate)

	require.Len(t, sink.records, 1)
	assert.Equal(t, p.Numbers, sink.records[0].Output.Numbers)
	require.Len(t, feed.seen, 1)
	assert.Equal(t, p.ID, feed.seen[0].ID)
}

func TestGeneratePrediction_RecordFailureIsNotFatal(t *testing.T) {
	e := newEngine(weekly(30), &memSink{recordErr: errors.New("disk full")})
	p, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, p.ID)
	assert.Len(t, p.Numbers, 5)
}

func TestGeneratePrediction_SingleModel(t *testing.T) {
	e := newEngine(weekly(30), &memSink{})
	for _, name := range []string{"xgboost", "random_forest", "lstm"} {
		tag, err := ml.ParseModelTag(name)
		require.NoError(t, err)

		p, err := e.GeneratePrediction(context.Background(), category, ml.Config{Model: tag, ConfidenceThreshold: 0.5, LookbackDays: 365})
		require.NoError(t, err)
		assert.Equal(t, tag, p.Model)
		assert.Len(t, p.Numbers, 5)
	}
}

func TestGeneratePrediction_SourceError(t *testing.T) {
	e := New(&memSource{err: errors.New("offline")}, nil, newHybrid(), nil, DefaultOptions())
	_, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	assert.Error(t, err)
	assert.False(t, IsInsufficientData(err))
}

func TestGeneratePrediction_ConstantHistory(t *testing.T) {
	e := newEngine(weekly(60, 7, 23, 45, 61, 88), &memSink{})
	_, err := e.TrainAll(context.Background(), category)
	require.NoError(t, err)

	p, err := e.GeneratePrediction(context.Background(), category, ml.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{7, 23, 45, 61, 88}, p.Numbers)
	assert.GreaterOrEqual(t, p.Confidence, 0.5)
}

func TestTrainAll(t *testing.T) {
	e := newEngine(weekly(49), nil)
	report, err := e.TrainAll(context.Background(), category)
	assert.True(t, IsInsufficientData(err))
	assert.Zero(t, report.Trained)
	assert.Equal(t, 49, report.Draws)

	e = newEngine(weekly(50), nil)
	report, err = e.TrainAll(context.Background(), category)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Trained)
	assert.Equal(t, 3, report.Total)
}

func TestEvaluateAndRecommend(t *testing.T) {
	sink := &memSink{}
	e := newEngine(weekly(20), sink)

	tag, err := e.RecommendModel(category)
	require.NoError(t, err)
	assert.Equal(t, ml.ModelHybrid, tag)

	sink.records = []ml.PredictionRecord{
		{Output: ml.Output{Model: ml.ModelBoost, Numbers: []int{1, 2, 3, 4, 5}, Confidence: 0.3}, Actual: []int{1, 2, 3, 60, 70}},
		{Output: ml.Output{Model: ml.ModelForest, Numbers: []int{1, 2, 3, 4, 5}, Confidence: 0.5}, Actual: []int{1, 50, 60, 70, 80}},
		{Output: ml.Output{Model: ml.ModelHybrid, Numbers: []int{1, 2, 3, 4, 5}, Confidence: 0.6}},
	}

	perfs, err := e.Evaluate(category)
	require.NoError(t, err)
	require.Len(t, perfs, 4)
	assert.InDelta(t, 60.0, perfs[0].Accuracy, 1e-12)
	assert.InDelta(t, 20.0, perfs[1].Accuracy, 1e-12)
	assert.Equal(t, 1, perfs[3].TotalPredictions)
	assert.Zero(t, perfs[3].Evaluated)
	assert.Equal(t, 2, sink.resolved)

	tag, err = e.RecommendModel(category)
	require.NoError(t, err)
	assert.Equal(t, ml.ModelBoost, tag)
}

func TestAdaptWeights(t *testing.T) {
	sink := &memSink{}
	e := newEngine(weekly(20), sink)

	report, err := e.AdaptWeights(category)
	require.NoError(t, err)
	assert.False(t, report.Applied)
	assert.Equal(t, ml.DefaultWeights(), report.Weights)

	sink.records = []ml.PredictionRecord{
		{Output: ml.Output{Model: ml.ModelSequence, Numbers: []int{1, 2, 3, 4, 5}}, Actual: []int{1, 2, 3, 4, 5}},
	}
	report, err = e.AdaptWeights(category)
	require.NoError(t, err)
	assert.True(t, report.Applied)
	assert.Equal(t, ml.ModelSequence, report.Model)
	assert.InDelta(t, 100.0, report.Accuracy, 1e-12)
	assert.InDelta(t, 0.35/1.1, report.Weights.Sequence, 1e-12)
	assert.InDelta(t, 1.0, report.Weights.Sum(), 1e-9)
	assert.Equal(t, report.Weights, e.Hybrid().Weights())
}
