package sim

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Ledger is the node surface the simulation drives.
type Ledger interface {
	RegisterPeer(ctx context.Context, address string) error
	SubmitTransaction(ctx context.Context, author string, content map[string]any) error
	Mine(ctx context.Context) (mined bool, index int, err error)
}

// Config holds simulation parameters.
type Config struct {
	Steps  int
	Agents int
	// NonGeneratorShare is the fraction of agents without generation.
	NonGeneratorShare float64
	// Seed makes the synthetic data reproducible; 0 draws a random seed.
	Seed uint64
}

// StepResult summarizes one market step.
type StepResult struct {
	Step          int
	ClearingPrice float64
	TotalDemand   float64
	Payments      int
	BlockIndex    int
	Duration      time.Duration
}

// Report summarizes a simulation run.
type Report struct {
	Steps        int
	Agents       int
	Transactions int
	Blocks       int
	Mean         time.Duration
	Max          time.Duration
	Min          time.Duration
	StepResults  []StepResult
}

// Runner executes the market simulation against a Ledger.
type Runner struct {
	cfg    Config
	ledger Ledger
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, ledger Ledger, logger *zap.Logger) (*Runner, error) {
	if cfg.Steps <= 0 || cfg.Agents <= 0 {
		return nil, fmt.Errorf("steps and agents must be positive, got %d and %d", cfg.Steps, cfg.Agents)
	}
	if cfg.NonGeneratorShare < 0 || cfg.NonGeneratorShare > 1 {
		return nil, fmt.Errorf("non-generator share %.2f out of range [0, 1]", cfg.NonGeneratorShare)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, ledger: ledger, logger: logger}, nil
}

// Run synthesizes market data, registers one wallet per agent with the
// ledger, and plays every step: publish, auction, settle, pay, mine.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = mrand.Uint64()
	}
	rng := mrand.New(mrand.NewPCG(seed, seed>>1|1))

	nonGens := int(r.cfg.NonGeneratorShare * float64(r.cfg.Agents))
	data, err := Synthesize(rng, r.cfg.Steps, r.cfg.Agents, nonGens)
	if err != nil {
		return Report{}, err
	}

	agents := make([]*Agent, r.cfg.Agents)
	for i := range agents {
		w, err := NewWallet(rand.Reader)
		if err != nil {
			return Report{}, err
		}
		agents[i] = NewAgent(i, w, data)
		if err := r.ledger.RegisterPeer(ctx, w.Address); err != nil {
			return Report{}, fmt.Errorf("register agent %d: %w", i, err)
		}
	}
	r.logger.Info("sim: agents registered",
		zap.Int("agents", len(agents)),
		zap.Int("non_generators", nonGens),
		zap.Uint64("seed", seed),
	)

	report := Report{Steps: r.cfg.Steps, Agents: r.cfg.Agents}
	for step := 0; step < r.cfg.Steps; step++ {
		res, err := r.runStep(ctx, step, agents)
		if err != nil {
			return report, fmt.Errorf("step %d: %w", step, err)
		}
		report.StepResults = append(report.StepResults, res)
		report.Transactions += res.Payments
		if res.BlockIndex > 0 {
			report.Blocks++
		}
	}
	report.Mean, report.Max, report.Min = durationStats(report.StepResults)
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, step int, agents []*Agent) (StepResult, error) {
	start := time.Now()

	infos := make([]EnergyInfo, len(agents))
	for i, a := range agents {
		infos[i] = a.Publish(step)
	}
	auction := SingleSidedAuction(infos)
	settlements := MatchPayments(NetPositions(infos))

	var submitted int
	for _, a := range agents {
		if a.Generator() {
			continue
		}
		payments, err := a.Payments(step, auction.ClearingPrice, settlements, agents)
		if err != nil {
			return StepResult{}, err
		}
		for _, p := range payments {
			if err := r.ledger.SubmitTransaction(ctx, p.Author, p.Content); err != nil {
				return StepResult{}, fmt.Errorf("submit payment from agent %d: %w", a.Node, err)
			}
			submitted++
		}
	}

	_, index, err := r.ledger.Mine(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("mine: %w", err)
	}

	res := StepResult{
		Step:          step,
		ClearingPrice: auction.ClearingPrice,
		TotalDemand:   auction.TotalDemand,
		Payments:      submitted,
		BlockIndex:    index,
		Duration:      time.Since(start),
	}
	r.logger.Info("sim: step done",
		zap.Int("step", step),
		zap.Float64("clearing_price", res.ClearingPrice),
		zap.Bool("cleared", auction.Cleared),
		zap.Int("payments", submitted),
		zap.Int("block", index),
		zap.Duration("took", res.Duration),
	)
	return res, nil
}

func durationStats(results []StepResult) (mean, hi, lo time.Duration) {
	if len(results) == 0 {
		return 0, 0, 0
	}
	lo = time.Duration(math.MaxInt64)
	var total time.Duration
	for _, r := range results {
		total += r.Duration
		hi = max(hi, r.Duration)
		lo = min(lo, r.Duration)
	}
	return total / time.Duration(len(results)), hi, lo
}
