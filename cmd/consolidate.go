package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/impresso/consolidator/internal/consolidate"
	"github.com/impresso/consolidator/internal/coordinator"
	"github.com/impresso/consolidator/internal/partition"
	"github.com/impresso/consolidator/internal/runlog"
	"github.com/impresso/consolidator/internal/stamp"
	"github.com/impresso/consolidator/internal/storage"
)

var consolidateFlags struct {
	version     string
	runID       string
	pattern     string
	provider    string
	newspaper   string
	concurrency int
	loadCeiling float64
	order       string
	orphans     string
	limit       int
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate planned partitions and publish versioned output",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		version := firstNonEmpty(consolidateFlags.version, cfg.Consolidate.Version)
		if version == "" {
			return eris.New("output version is required (--version or consolidate.version)")
		}
		runID := firstNonEmpty(consolidateFlags.runID, cfg.Consolidate.RunID)
		if runID == "" {
			return eris.New("langident run id is required (--run-id or consolidate.run_id)")
		}
		if cfg.Storage.InputRoot == "" || cfg.Storage.OutputRoot == "" {
			return eris.New("storage.input_root and storage.output_root must be configured")
		}

		order, err := partition.ParseOrder(firstNonEmpty(consolidateFlags.order, cfg.Consolidate.Order))
		if err != nil {
			return err
		}
		orphans, err := consolidate.ParseOrphanPolicy(firstNonEmpty(consolidateFlags.orphans, cfg.Consolidate.Orphans))
		if err != nil {
			return err
		}

		osFs := afero.NewOsFs()
		inputs := storage.NewFSStore(osFs, cfg.Storage.InputRoot)
		outputs := storage.NewFSStore(osFs, cfg.Storage.OutputRoot)

		parts, err := partition.NewPlanner(inputs).Plan(ctx, partition.Filter{
			Pattern:   consolidateFlags.pattern,
			Provider:  consolidateFlags.provider,
			Newspaper: consolidateFlags.newspaper,
		}, order)
		if err != nil {
			return err
		}
		if consolidateFlags.limit > 0 && len(parts) > consolidateFlags.limit {
			parts = parts[:consolidateFlags.limit]
		}
		if len(parts) == 0 {
			zap.L().Info("no partitions matched the filter")
			return nil
		}

		stamps, err := newStampStore(outputs)
		if err != nil {
			return err
		}

		log, err := runlog.Open(cfg.RunLog.Path)
		if err != nil {
			return err
		}
		defer log.Close() //nolint:errcheck
		if err := log.Migrate(ctx); err != nil {
			return err
		}

		concurrency := consolidateFlags.concurrency
		if concurrency <= 0 {
			concurrency = cfg.Consolidate.Concurrency
		}
		loadCeiling := consolidateFlags.loadCeiling
		if loadCeiling == 0 {
			loadCeiling = cfg.Consolidate.LoadCeiling
		}

		coord := coordinator.New(inputs, outputs, stamps, log, coordinator.Config{
			Version:       version,
			RunID:         runID,
			Concurrency:   concurrency,
			LoadCeiling:   loadCeiling,
			StartInterval: time.Duration(cfg.Consolidate.StartIntervalMs) * time.Millisecond,
			Orphans:       orphans,
			ScratchDir:    cfg.Storage.ScratchDir,
		})

		zap.L().Info("starting consolidation",
			zap.Int("partitions", len(parts)),
			zap.String("version", version),
			zap.String("run_id", runID),
			zap.Int("concurrency", concurrency),
		)

		results, err := coord.Run(ctx, parts)
		if err != nil {
			return err
		}

		succeeded, skipped := 0, 0
		for _, r := range results {
			switch {
			case r.Err != nil:
			case r.Skipped:
				skipped++
			default:
				succeeded++
			}
		}
		failed := coordinator.Failed(results)
		zap.L().Info("consolidation finished",
			zap.Int("succeeded", succeeded),
			zap.Int("skipped", skipped),
			zap.Int("failed", failed),
		)

		if failed > 0 {
			return eris.Errorf("%d of %d partitions failed", failed, len(parts))
		}
		return nil
	},
}

func init() {
	f := consolidateCmd.Flags()
	f.StringVar(&consolidateFlags.version, "version", "", "output version identifier (required)")
	f.StringVar(&consolidateFlags.runID, "run-id", "", "langident run id recorded on every item (required)")
	f.StringVar(&consolidateFlags.pattern, "providers", "", `glob over "provider/newspaper", e.g. "BL/*"`)
	f.StringVar(&consolidateFlags.provider, "provider", "", "explicit provider (with --newspaper)")
	f.StringVar(&consolidateFlags.newspaper, "newspaper", "", "explicit newspaper (with --provider)")
	f.IntVar(&consolidateFlags.concurrency, "concurrency", 0, "max simultaneous partitions (0 = config default)")
	f.Float64Var(&consolidateFlags.loadCeiling, "load-ceiling", 0, "1-minute load average above which new partitions wait (0 = off)")
	f.StringVar(&consolidateFlags.order, "order", "", "partition order: random, chrono or reverse")
	f.StringVar(&consolidateFlags.orphans, "orphans", "", "orphan enrichment policy: ignore, warn or fail")
	f.IntVar(&consolidateFlags.limit, "limit", 0, "max partitions to process this run (0 = all)")
	rootCmd.AddCommand(consolidateCmd)
}

func newStampStore(outputs storage.BlobStore) (stamp.Store, error) {
	switch cfg.Stamps.Backend {
	case "", "blob":
		return stamp.NewBlobStore(outputs), nil
	case "local":
		if cfg.Stamps.Dir == "" {
			return nil, eris.New("stamps.dir must be set for the local stamp backend")
		}
		return stamp.NewLocalStore(cfg.Stamps.Dir)
	default:
		return nil, eris.Errorf("unknown stamp backend %q (want blob or local)", cfg.Stamps.Backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
