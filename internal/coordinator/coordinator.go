// Package coordinator drives planned partitions through the consolidation
// engine under a concurrency and load budget. There is no distributed
// lock: correctness across racing workers comes from deterministic output
// keys per (partition, version) and the stamp skip check.
package coordinator

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/impresso/consolidator/internal/consolidate"
	"github.com/impresso/consolidator/internal/enrichment"
	"github.com/impresso/consolidator/internal/model"
	"github.com/impresso/consolidator/internal/partition"
	"github.com/impresso/consolidator/internal/runlog"
	"github.com/impresso/consolidator/internal/stamp"
	"github.com/impresso/consolidator/internal/storage"
)

// Config bounds a coordinator run.
type Config struct {
	// Version is the output version identifier embedded in every output key.
	Version string
	// RunID names the enrichment computation run recorded on every item.
	RunID string
	// Concurrency is the maximum number of simultaneously active partitions.
	Concurrency int
	// LoadCeiling throttles new partition starts while the 1-minute load
	// average exceeds it. Zero disables the gate.
	LoadCeiling float64
	// StartInterval smooths partition starts to avoid I/O bursts when many
	// workers launch at once. Zero disables it.
	StartInterval time.Duration
	// Orphans is the policy for enrichment records matching no content item.
	Orphans consolidate.OrphanPolicy
	// ScratchDir holds intermediate output files; defaults to the system
	// temp directory.
	ScratchDir string
	// ProcessingTime, when set, fixes the consolidation timestamp so
	// re-runs of unchanged inputs produce byte-identical output. Zero
	// means the wall clock at partition start.
	ProcessingTime time.Time
}

// Result is the outcome of one partition.
type Result struct {
	Partition partition.Partition
	Skipped   bool
	Stats     consolidate.RunStats
	Duration  time.Duration
	Err       error
}

// Coordinator processes partitions against one input/output store pair.
type Coordinator struct {
	inputs  storage.BlobStore
	outputs storage.BlobStore
	stamps  stamp.Store
	log     *runlog.Log // optional
	retry   storage.RetryConfig
	cfg     Config
}

// New returns a coordinator. The run log may be nil, in which case only
// the published artifacts record outcomes.
func New(inputs, outputs storage.BlobStore, stamps stamp.Store, log *runlog.Log, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Orphans == "" {
		cfg.Orphans = consolidate.OrphansIgnore
	}
	return &Coordinator{
		inputs:  inputs,
		outputs: outputs,
		stamps:  stamps,
		log:     log,
		retry:   storage.DefaultRetryConfig(),
		cfg:     cfg,
	}
}

// Run processes every planned partition and returns per-partition results
// in plan order. A partition failure never aborts its siblings; the error
// is non-nil only when the run as a whole could not proceed (context
// cancellation).
func (c *Coordinator) Run(ctx context.Context, parts []partition.Partition) ([]Result, error) {
	results := make([]Result, len(parts))

	var limiter *rate.Limiter
	if c.cfg.StartInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.cfg.StartInterval), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, p := range parts {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					results[i] = Result{Partition: p, Err: err}
					return err
				}
			}
			if err := waitForLoad(gctx, c.cfg.LoadCeiling); err != nil {
				results[i] = Result{Partition: p, Err: err}
				return err
			}

			start := time.Now()
			res := c.processPartition(gctx, p)
			res.Duration = time.Since(start)
			results[i] = res

			if res.Err != nil {
				// Partition failures are isolated; only cancellation
				// propagates to siblings.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Error("partition failed",
					zap.String("partition", p.String()),
					zap.String("kind", string(model.KindOf(res.Err))),
					zap.Error(res.Err),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "coordinator: run aborted")
	}
	return results, nil
}

// Failed counts failed partitions in a result set.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// processPartition runs the full partition transaction: stamp check, index
// build, streaming consolidation into scratch, upload, artifact, stamp.
// A failure anywhere leaves no stamp, so a later run retries from scratch.
func (c *Coordinator) processPartition(ctx context.Context, p partition.Partition) Result {
	log := zap.L().With(
		zap.String("partition", p.String()),
		zap.String("version", c.cfg.Version),
	)
	res := Result{Partition: p}

	done, err := c.stamps.IsComplete(ctx, p, c.cfg.Version)
	if err != nil {
		res.Err = &model.StampError{Op: "check", Err: eris.Wrapf(err, "partition %s", p)}
		return res
	}
	if done {
		log.Info("partition already consolidated, skipping")
		if c.log != nil {
			if err := c.log.Skip(ctx, p, c.cfg.Version); err != nil {
				log.Warn("run log skip entry failed", zap.Error(err))
			}
		}
		res.Skipped = true
		return res
	}

	var logID string
	if c.log != nil {
		logID, err = c.log.Start(ctx, p, c.cfg.Version)
		if err != nil {
			res.Err = eris.Wrapf(err, "coordinator: run log start %s", p)
			return res
		}
	}

	startedAt := time.Now()
	artifact := runlog.NewArtifact(p, c.cfg.Version, c.cfg.RunID, startedAt)

	stats, err := c.consolidatePartition(ctx, p, log)
	if stats != nil {
		res.Stats = *stats
		artifact.Issues = stats.Issues
		artifact.ItemsConsolidated = stats.ItemsConsolidated
		artifact.ImagesSkipped = stats.ImagesSkipped
		artifact.OrphanEnrichments = stats.Orphans
	}
	artifact.CompletedAt = time.Now().UTC()

	if err != nil {
		res.Err = err
		artifact.Status = runlog.StatusFailed
		artifact.Error = err.Error()
		artifact.ErrorKind = string(model.KindOf(err))
		var missing *model.MissingEnrichmentError
		if errors.As(err, &missing) {
			artifact.MissingContentItems = []string{missing.ContentItemID}
		}
		// Best effort: the artifact is diagnostics, not the output.
		if aErr := runlog.Publish(ctx, c.outputs, p, artifact); aErr != nil {
			log.Warn("failed to publish failure artifact", zap.Error(aErr))
		}
		if c.log != nil {
			if lErr := c.log.Fail(ctx, logID, err.Error()); lErr != nil {
				log.Warn("run log update failed", zap.Error(lErr))
			}
		}
		return res
	}

	artifact.Status = runlog.StatusComplete
	if err := runlog.Publish(ctx, c.outputs, p, artifact); err != nil {
		log.Warn("failed to publish artifact", zap.Error(err))
	}

	// Output and artifact are durable; only now may the stamp appear.
	if err := c.stamps.MarkComplete(ctx, p, c.cfg.Version); err != nil {
		res.Err = &model.StampError{Op: "mark", Err: eris.Wrapf(err, "partition %s", p)}
		if c.log != nil {
			if lErr := c.log.Fail(ctx, logID, res.Err.Error()); lErr != nil {
				log.Warn("run log update failed", zap.Error(lErr))
			}
		}
		return res
	}

	if c.log != nil {
		if err := c.log.Complete(ctx, logID, runlog.Counts{
			Issues:            res.Stats.Issues,
			ItemsConsolidated: res.Stats.ItemsConsolidated,
			ImagesSkipped:     res.Stats.ImagesSkipped,
		}); err != nil {
			log.Warn("run log update failed", zap.Error(err))
		}
	}

	log.Info("partition published",
		zap.Int("issues", res.Stats.Issues),
		zap.Int("items", res.Stats.ItemsConsolidated),
	)
	return res
}

// consolidatePartition builds the enrichment index, streams issues through
// the consolidator into a scratch file and uploads the result. Nothing is
// written to the output key unless every issue consolidated.
func (c *Coordinator) consolidatePartition(ctx context.Context, p partition.Partition, log *zap.Logger) (*consolidate.RunStats, error) {
	idx, err := c.buildIndex(ctx, p, log)
	if err != nil {
		return nil, err
	}

	issuesRC, err := c.openBlob(ctx, c.inputs, p.IssuesKey())
	if err != nil {
		return nil, err
	}
	defer issuesRC.Close()

	scratch, err := os.CreateTemp(c.cfg.ScratchDir, "consolidated-*.jsonl.gz")
	if err != nil {
		return nil, eris.Wrap(err, "coordinator: create scratch file")
	}
	defer func() {
		scratch.Close()
		os.Remove(scratch.Name())
	}()

	outputKey := p.OutputKey(c.cfg.Version)
	enc := storage.NewEncodingWriter(scratch, outputKey)

	processingTime := c.cfg.ProcessingTime
	if processingTime.IsZero() {
		processingTime = time.Now()
	}
	cons := consolidate.NewAt(c.cfg.RunID, processingTime)
	stats, err := cons.Run(issuesRC, enc, idx, c.cfg.Orphans, log)
	if err != nil {
		enc.Close()
		return stats, err
	}
	if err := enc.Close(); err != nil {
		return stats, eris.Wrap(err, "coordinator: finish scratch output")
	}

	if _, err := scratch.Seek(0, 0); err != nil {
		return stats, eris.Wrap(err, "coordinator: rewind scratch file")
	}
	err = storage.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		if _, err := scratch.Seek(0, 0); err != nil {
			return err
		}
		return c.outputs.Put(ctx, outputKey, scratch)
	})
	if err != nil {
		return stats, eris.Wrapf(err, "coordinator: upload %s", outputKey)
	}
	return stats, nil
}

func (c *Coordinator) buildIndex(ctx context.Context, p partition.Partition, log *zap.Logger) (*enrichment.Index, error) {
	rc, err := c.openBlob(ctx, c.inputs, p.EnrichmentKey())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return enrichment.Load(rc, log)
}

// openBlob opens a key with retry and transparent decompression.
func (c *Coordinator) openBlob(ctx context.Context, store storage.BlobStore, key string) (io.ReadCloser, error) {
	var raw io.ReadCloser
	err := storage.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		raw, err = store.Open(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return storage.NewDecodingReader(raw, key)
}
