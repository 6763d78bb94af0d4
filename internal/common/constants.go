package common

// Number space
const (
	MinNumber      = 1
	MaxNumber      = 90
	NumberSpace    = MaxNumber - MinNumber + 1
	NumbersPerDraw = 5
)

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvDataPath           = "DATA_PATH"
	EnvAPIPort            = "API_PORT"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogPretty          = "LOG_PRETTY"
	EnvSeed               = "SEED"
	EnvModelTimeout       = "MODEL_TIMEOUT"
	EnvFallbackWindow     = "FALLBACK_WINDOW"
	EnvTrendWindow        = "TREND_WINDOW"
	EnvRecencyDecay       = "RECENCY_DECAY"
	EnvCoOccurrenceWeight = "COOCCURRENCE_WEIGHT"
	EnvBoostLearningRate  = "BOOST_LEARNING_RATE"
	EnvBoostIterations    = "BOOST_ITERATIONS"
	EnvForestTrees        = "FOREST_TREES"
	EnvForestMaxDepth     = "FOREST_MAX_DEPTH"
	EnvForestMinLeaf      = "FOREST_MIN_LEAF"
	EnvSequenceWindow     = "SEQUENCE_WINDOW"
	EnvSequenceEpochs     = "SEQUENCE_EPOCHS"
	EnvSequenceRate       = "SEQUENCE_LEARNING_RATE"
	EnvAPIURL             = "LOTO_API_URL"
	EnvWSURL              = "LOTO_WS_URL"
	EnvRESTTimeout        = "REST_TIMEOUT"
	EnvTrainTimeout       = "TRAIN_TIMEOUT"
	EnvDefaultModel       = "DEFAULT_MODEL"
	EnvThreshold          = "CONFIDENCE_THRESHOLD"
	EnvLookbackDays       = "LOOKBACK_DAYS"
	EnvWeightRecent       = "WEIGHT_RECENT"
	EnvIncludeMachine     = "INCLUDE_MACHINE_NUMBERS"
)

// Configuration defaults
const (
	DefaultDataPath           = "data"
	DefaultAPIPort            = 8090
	DefaultMetricsPort        = 9090
	DefaultLogLevel           = "info"
	DefaultSeed               = 42
	DefaultAPIURL             = "http://localhost:8090"
	DefaultWSURL              = "ws://localhost:8090/ws/predictions"
	DefaultMinPredictHistory  = 10
	DefaultMinTrainHistory    = 50
	DefaultFallbackWindow     = 20
	DefaultFallbackConfidence = 0.4
	DefaultTrendWindow        = 10
	DefaultRecencyDecay       = 20.0
	DefaultCoOccurrenceWeight = 0.1
	DefaultBoostLearningRate  = 0.01
	DefaultBoostIterations    = 100
	DefaultBoostLossTarget    = 0.01
	DefaultForestTrees        = 50
	DefaultForestMaxDepth     = 10
	DefaultForestMinLeaf      = 5
	DefaultSequenceWindow     = 10
	DefaultSequenceEpochs     = 50
	DefaultSequenceRate       = 0.5
	DefaultSequenceLossTarget = 0.5
	DefaultSequenceConfidence = 0.3
	DefaultLookbackDays       = 365
	DefaultThreshold          = 0.5
	DefaultWeightBoost        = 0.40
	DefaultWeightForest       = 0.35
	DefaultWeightSequence     = 0.25
)

// Validation constants
const (
	MinLookbackDays  = 7
	MaxConfidence    = 0.95
	WeightTolerance  = 1e-9
	MinMetricsPort   = 1024
	MaxMetricsPort   = 65535
	MaxForestTrees   = 1000
	MaxForestDepth   = 64
	MaxSequenceWidth = 200
)
