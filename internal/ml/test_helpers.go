package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                  sync.Mutex
	predictions         map[string]int
	failures            map[string]int
	fallbackUse         map[string]int
	timeouts            map[string]int
	trainings           map[string]string
	latencySum          float64
	confidences         []float64
	weights             Weights
	persistenceFailures int
}

func (m *MockMetrics) inc(counter *map[string]int, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *counter == nil {
		*counter = make(map[string]int)
	}
	(*counter)[key]++
}

func (m *MockMetrics) PredictionInc(model string)  { m.inc(&m.predictions, model) }
func (m *MockMetrics) FailureInc(model string)     { m.inc(&m.failures, model) }
func (m *MockMetrics) FallbackUseInc(model string) { m.inc(&m.fallbackUse, model) }
func (m *MockMetrics) TimeoutInc(model string)     { m.inc(&m.timeouts, model) }

func (m *MockMetrics) LatencyObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) ConfidenceObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidences = append(m.confidences, v)
}

func (m *MockMetrics) TrainingInc(model, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trainings == nil {
		m.trainings = make(map[string]string)
	}
	m.trainings[model] = outcome
}

func (m *MockMetrics) WeightsSet(boost, forest, sequence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = Weights{Boost: boost, Forest: forest, Sequence: sequence}
}

func (m *MockMetrics) PersistenceFailureInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistenceFailures++
}

func (m *MockMetrics) count(counter map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counter[key]
}

// MemoryWeightStore keeps weights in memory, optionally failing on demand.
type MemoryWeightStore struct {
	mu          sync.Mutex
	weights     *Weights
	loadErr     error
	persistErr  error
	persistCall int
}

func (s *MemoryWeightStore) LoadWeights() (Weights, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return Weights{}, false, s.loadErr
	}
	if s.weights == nil {
		return Weights{}, false, nil
	}
	return *s.weights, true, nil
}

func (s *MemoryWeightStore) PersistWeights(w Weights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistCall++
	if s.persistErr != nil {
		return s.persistErr
	}
	s.weights = &w
	return nil
}
