package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"poolscope/internal/model"
	"poolscope/internal/state"
)

// Config controls replay behavior.
type Config struct {
	// RecomputeFrom reprocesses the feed from this timestamp instead of the
	// persisted state. Zero means resume where the last run stopped.
	RecomputeFrom uint64
	// SaveEvery persists replay progress after this many applied events.
	SaveEvery  int
	StateStore StateStore
}

// Summary is the accounting for one replay run.
type Summary struct {
	Total         int
	Applied       int
	Skipped       int
	Rejected      int
	Unknown       int
	Failed        int
	LastTimestamp uint64
}

// Replayer feeds decoded events from a JSONL file through the state engine in
// file order. Rejected events are logged and dropped; a run only fails on
// input or persistence errors.
type Replayer struct {
	cfg    Config
	engine *state.Engine
	logger *zap.Logger
}

func NewReplayer(cfg Config, engine *state.Engine, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 1000
	}
	return &Replayer{cfg: cfg, engine: engine, logger: logger}
}

// Run replays the typed event feed at inputPath.
func (r *Replayer) Run(ctx context.Context, inputPath string) (Summary, error) {
	if r.engine == nil {
		return Summary{}, fmt.Errorf("engine is nil")
	}

	startTs, err := r.loadStartTimestamp(ctx)
	if err != nil {
		return Summary{}, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	summary := Summary{LastTimestamp: startTs}
	sinceSave := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			summary.Failed++
			r.logger.Warn("parse typed event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			summary.Skipped++
			continue
		}

		outcome, err := r.dispatch(ctx, record)
		switch outcome {
		case state.OutcomeApplied:
			summary.Applied++
		case state.OutcomeSkipped:
			summary.Skipped++
		case state.OutcomeRejected:
			summary.Rejected++
			r.logger.Warn("event rejected",
				zap.String("event", record.EventName),
				zap.String("address", record.Address),
				zap.Uint64("block", record.BlockNumber),
				zap.Error(err),
			)
		default:
			summary.Unknown++
		}

		if record.Timestamp > summary.LastTimestamp {
			summary.LastTimestamp = record.Timestamp
		}

		if outcome == state.OutcomeApplied {
			sinceSave++
			if sinceSave >= r.cfg.SaveEvery {
				if err := r.saveState(ctx, summary.LastTimestamp); err != nil {
					return summary, err
				}
				sinceSave = 0
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	if err := r.saveState(ctx, summary.LastTimestamp); err != nil {
		return summary, err
	}

	r.logger.Info("replay complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped),
		zap.Int("rejected", summary.Rejected),
		zap.Int("unknown", summary.Unknown),
		zap.Int("failed", summary.Failed),
		zap.Uint64("last_ts", summary.LastTimestamp),
	)

	return summary, nil
}

// outcomeUnknown marks event names the engine has no handler for.
const outcomeUnknown = state.Outcome(-1)

func (r *Replayer) dispatch(ctx context.Context, record model.TypedEventRecord) (state.Outcome, error) {
	switch record.EventName {
	case "PoolCreated":
		var ev model.PoolCreatedEventData
		if err := json.Unmarshal(record.Decoded, &ev); err != nil {
			return state.OutcomeRejected, fmt.Errorf("decode PoolCreated payload: %w", err)
		}
		return r.engine.OnPoolCreated(ctx, record.Address, ev)
	case "Initialize":
		var ev model.InitializeEventData
		if err := json.Unmarshal(record.Decoded, &ev); err != nil {
			return state.OutcomeRejected, fmt.Errorf("decode Initialize payload: %w", err)
		}
		return r.engine.OnInitialize(record.Address, ev)
	case "Mint":
		var ev model.MintEventData
		if err := json.Unmarshal(record.Decoded, &ev); err != nil {
			return state.OutcomeRejected, fmt.Errorf("decode Mint payload: %w", err)
		}
		return r.engine.OnMint(record.Address, ev)
	case "Burn":
		var ev model.BurnEventData
		if err := json.Unmarshal(record.Decoded, &ev); err != nil {
			return state.OutcomeRejected, fmt.Errorf("decode Burn payload: %w", err)
		}
		return r.engine.OnBurn(record.Address, ev)
	case "Swap":
		var ev model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &ev); err != nil {
			return state.OutcomeRejected, fmt.Errorf("decode Swap payload: %w", err)
		}
		return r.engine.OnSwap(record.Address, ev)
	default:
		r.logger.Debug("unhandled event", zap.String("event", record.EventName))
		return outcomeUnknown, nil
	}
}

func (r *Replayer) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if r.cfg.RecomputeFrom > 0 {
		return r.cfg.RecomputeFrom - 1, nil
	}
	if r.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (r *Replayer) saveState(ctx context.Context, ts uint64) error {
	if r.cfg.StateStore == nil || ts == 0 {
		return nil
	}
	return r.cfg.StateStore.Save(ctx, ts)
}
