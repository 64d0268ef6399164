package app

import (
	"context"
	"time"

	"gopower/domain/core"
	"gopower/domain/power"
	"gopower/domain/run"
	"gopower/domain/trial"
	"gopower/internal"
	"gopower/internal/config"
	"gopower/internal/engine"
	"gopower/internal/simulate"
	"gopower/ports"
)

// EngineVersion is stamped into run manifests so a fingerprint ties results
// to the code that produced them.
const EngineVersion = "0.4.0"

// PowerService is the single entry point the CLI and HTTP surfaces share:
// it assembles generator, analyzer and aggregators for one request, applies
// configured defaults, and returns the summary together with a replayable
// run manifest.
type PowerService struct {
	analyzer  ports.TrialAnalyzer
	rng       ports.RNGPort
	designers map[ports.SpendingFamily]ports.BoundaryDesigner
	defaults  config.SimulationConfig
	logger    *internal.Logger
}

// NewPowerService wires the service from its ports and configured defaults.
func NewPowerService(
	analyzer ports.TrialAnalyzer,
	rng ports.RNGPort,
	designers map[ports.SpendingFamily]ports.BoundaryDesigner,
	defaults config.SimulationConfig,
	logger *internal.Logger,
) *PowerService {
	return &PowerService{
		analyzer:  analyzer,
		rng:       rng,
		designers: designers,
		defaults:  defaults,
		logger:    logger,
	}
}

// PowerRequest defines a fixed-sample power estimation. Zero-valued
// repetition, alpha, confidence and worker fields fall back to the
// configured defaults.
type PowerRequest struct {
	Props      []float64 `json:"props"`
	SampleSize int       `json:"sample_size"`
	Reps       int       `json:"reps"`
	Alpha      float64   `json:"alpha"`
	ConfLevel  float64   `json:"conf_level"`
	Seed       int64     `json:"seed"`
	Workers    int       `json:"workers"`
}

// PowerResult is the complete output of a fixed-sample run.
type PowerResult struct {
	Manifest  run.Manifest       `json:"manifest"`
	Summary   power.PowerSummary `json:"summary"`
	RuntimeMs int64              `json:"runtime_ms"`
}

// EstimatePower runs one fixed-sample Monte Carlo power estimation.
func (s *PowerService) EstimatePower(ctx context.Context, req PowerRequest) (*PowerResult, error) {
	startTime := time.Now()

	design := trial.Design{
		Arms:       len(req.Props),
		Props:      req.Props,
		SampleSize: req.SampleSize,
	}
	generator, err := simulate.NewGenerator(design)
	if err != nil {
		return nil, err
	}

	cfg := s.runConfig(req.Reps, req.Alpha, req.ConfLevel, req.Workers)
	seed := s.seed(req.Seed)
	cfg.BaseSeed = seed

	manifest := run.NewManifest(design, nil, cfg.Reps, cfg.Alpha, cfg.ConfLevel, seed, EngineVersion)
	s.logger.Info("power run %s: n=%d reps=%d alpha=%v", manifest.RunID, design.SampleSize, cfg.Reps, cfg.Alpha)

	aggregator := engine.NewPowerAggregator(generator, s.analyzer, s.rng)
	summary, err := aggregator.EstimatePower(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if summary.AllFitsFailed {
		s.logger.Warn("power run %s: every repetition failed to fit", manifest.RunID)
	}

	return &PowerResult{
		Manifest:  manifest,
		Summary:   summary,
		RuntimeMs: time.Since(startTime).Milliseconds(),
	}, nil
}

// SequentialRequest defines a group-sequential power estimation. Either a
// spending family (with InterimN) or an explicit externally designed
// Schedule must be supplied; an explicit schedule wins.
type SequentialRequest struct {
	Props    []float64            `json:"props"`
	InterimN []int                `json:"interim_n"`
	Family   ports.SpendingFamily `json:"family"`
	Schedule trial.LookSchedule   `json:"schedule,omitempty"`

	Reps      int     `json:"reps"`
	Alpha     float64 `json:"alpha"`
	ConfLevel float64 `json:"conf_level"`
	Seed      int64   `json:"seed"`
	Workers   int     `json:"workers"`
}

// SequentialResult is the complete output of a sequential run.
type SequentialResult struct {
	Manifest  run.Manifest            `json:"manifest"`
	Schedule  trial.LookSchedule      `json:"schedule"`
	Summary   power.SequentialSummary `json:"summary"`
	RuntimeMs int64                   `json:"runtime_ms"`
}

// EstimateSequentialPower runs one group-sequential Monte Carlo estimation.
func (s *PowerService) EstimateSequentialPower(ctx context.Context, req SequentialRequest) (*SequentialResult, error) {
	startTime := time.Now()

	cfg := s.runConfig(req.Reps, req.Alpha, req.ConfLevel, req.Workers)
	seed := s.seed(req.Seed)
	cfg.BaseSeed = seed

	schedule := req.Schedule
	if len(schedule) == 0 {
		designed, err := s.DesignBoundary(ctx, req.InterimN, cfg.Alpha, req.Family)
		if err != nil {
			return nil, err
		}
		schedule = designed
	}
	if len(schedule) == 0 {
		return nil, core.ErrEmptySchedule
	}

	design := trial.Design{
		Arms:       len(req.Props),
		Props:      req.Props,
		SampleSize: schedule[len(schedule)-1].CumulativeN,
	}
	generator, err := simulate.NewGenerator(design)
	if err != nil {
		return nil, err
	}
	runner, err := engine.NewSequentialRunner(generator, s.analyzer, schedule)
	if err != nil {
		return nil, err
	}

	manifest := run.NewManifest(design, schedule, cfg.Reps, cfg.Alpha, cfg.ConfLevel, seed, EngineVersion)
	s.logger.Info("sequential run %s: looks=%d n=%d reps=%d", manifest.RunID, len(schedule), design.SampleSize, cfg.Reps)

	aggregator := engine.NewSequentialAggregator(runner, s.rng)
	summary, err := aggregator.EstimatePower(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &SequentialResult{
		Manifest:  manifest,
		Schedule:  schedule,
		Summary:   summary,
		RuntimeMs: time.Since(startTime).Milliseconds(),
	}, nil
}

// DesignBoundary derives a LookSchedule from the configured boundary
// designer for the given spending family.
func (s *PowerService) DesignBoundary(ctx context.Context, interimN []int, alpha float64, family ports.SpendingFamily) (trial.LookSchedule, error) {
	if alpha == 0 {
		alpha = s.defaults.Alpha
	}
	designer, ok := s.designers[family]
	if !ok {
		return nil, core.NewConfigurationError("spending_family", "no designer registered for "+string(family))
	}
	return designer.Schedule(ctx, interimN, alpha)
}

func (s *PowerService) runConfig(reps int, alpha, confLevel float64, workers int) engine.RunConfig {
	cfg := engine.RunConfig{
		Reps:      reps,
		Alpha:     alpha,
		ConfLevel: confLevel,
		Workers:   workers,
	}
	if cfg.Reps == 0 {
		cfg.Reps = s.defaults.Reps
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = s.defaults.Alpha
	}
	if cfg.ConfLevel == 0 {
		cfg.ConfLevel = s.defaults.ConfLevel
	}
	if cfg.Workers == 0 {
		cfg.Workers = s.defaults.Workers
	}
	return cfg
}

func (s *PowerService) seed(seed int64) int64 {
	if seed == 0 {
		return s.defaults.BaseSeed
	}
	return seed
}
