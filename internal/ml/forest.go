package ml

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"loto-predictor/internal/common"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// ForestParams tune the tree ensemble.
type ForestParams struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

// DefaultForestParams returns the standard ensemble settings.
func DefaultForestParams() ForestParams {
	return ForestParams{
		Trees:    common.DefaultForestTrees,
		MaxDepth: common.DefaultForestMaxDepth,
		MinLeaf:  common.DefaultForestMinLeaf,
		Seed:     common.DefaultSeed + 1,
	}
}

// ForestModel is a bagged ensemble of regression trees over draw rows. Each
// tree votes for five numbers and the most voted numbers win.
type ForestModel struct {
	mu     sync.RWMutex
	params ForestParams
	trees  []*tree
}

// NewForestModel creates an untrained forest.
func NewForestModel(params ForestParams) *ForestModel {
	if params.Trees <= 0 {
		params.Trees = common.DefaultForestTrees
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = common.DefaultForestMaxDepth
	}
	if params.MinLeaf <= 0 {
		params.MinLeaf = common.DefaultForestMinLeaf
	}
	return &ForestModel{params: params}
}

// Name implements Predictor.
func (m *ForestModel) Name() ModelTag { return ModelForest }

// Train grows every tree on a bootstrap sample of the history rows. The
// previous ensemble is replaced only when all trees are built.
func (m *ForestModel) Train(ctx context.Context, history []draws.Draw) error {
	if len(history) < 1 {
		return &InsufficientDataError{Component: string(ModelForest), Have: len(history), Need: 1}
	}

	rows := features.Rows(history)
	rng := rand.New(rand.NewSource(m.params.Seed))
	params := treeParams{
		maxDepth:    m.params.MaxDepth,
		minLeaf:     m.params.MinLeaf,
		featureBags: int(math.Ceil(math.Sqrt(float64(features.RowWidth)))),
	}

	trees := make([]*tree, 0, m.params.Trees)
	for t := 0; t < m.params.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := make([][]float64, len(rows))
		for i := range sample {
			sample[i] = rows[rng.Intn(len(rows))]
		}
		trees = append(trees, buildTree(sample, params, rng))
	}

	m.mu.Lock()
	m.trees = trees
	m.mu.Unlock()

	log.Debug().
		Int("draws", len(history)).
		Int("trees", len(trees)).
		Msg("Forest model trained")
	return nil
}

// Trained reports whether the ensemble has been built.
func (m *ForestModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trees) > 0
}

// Predict lets every tree vote on the row of the most recent draw. An
// untrained forest is trained on history first.
func (m *ForestModel) Predict(ctx context.Context, history []draws.Draw, cfg Config) (Output, error) {
	if len(history) == 0 {
		return Output{}, &InsufficientDataError{Component: string(ModelForest), Have: 0, Need: 1}
	}
	if !m.Trained() {
		if err := m.Train(ctx, history); err != nil {
			return Output{}, err
		}
	}

	row := features.Rows(history[:1])[0]

	m.mu.RLock()
	trees := m.trees
	m.mu.RUnlock()

	votes := make([]float64, common.NumberSpace)
	for _, t := range trees {
		for _, n := range t.predict(row) {
			votes[n-1]++
		}
	}

	top := rankedScores(votes, 1)
	return Output{
		Numbers:     topNumbers(votes, common.NumbersPerDraw),
		Confidence:  clamp(top[0]/float64(len(trees)), 0, common.MaxConfidence),
		Model:       ModelForest,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Depths returns the depth of each tree, for diagnostics.
func (m *ForestModel) Depths() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.trees))
	for i, t := range m.trees {
		out[i] = t.depth()
	}
	return out
}
