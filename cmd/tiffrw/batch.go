package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/airbusgeo/tiffrw"
)

// batchJob is one independent read or write operation, run against
// its own engine instance — batch never shares a Map across
// goroutines, honoring the single-threaded-per-engine concurrency
// model; gobs only fans out across jobs, never within one.
type batchJob struct {
	Op          string `json:"op"` // "read" or "write"
	File        string `json:"file"`
	IFD         int    `json:"ifd"`
	Compression string `json:"compression"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	W           int32  `json:"w"`
	H           int32  `json:"h"`
	Path        string `json:"path"` // input (write) or output (read) file
}

type batchConfig struct {
	Jobs []batchJob `json:"jobs"`
}

func newBatchCommand() *cobra.Command {
	var configPath string
	var parallelism int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "run many independent read/write jobs concurrently, one engine per job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read config %s: %w", configPath, err)
			}
			var cfg batchConfig
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parse config %s: %w", configPath, err)
			}

			pool := gobs.NewPool(parallelism)
			batch := pool.Batch()
			for _, job := range cfg.Jobs {
				job := job
				runID := uuid.New().String()
				batch.Submit(func() error {
					if err := runBatchJob(job); err != nil {
						zap.L().Error("batch job failed", zap.String("runID", runID), zap.String("file", job.File), zap.Error(err))
						return fmt.Errorf("%s %s: %w", job.Op, job.File, err)
					}
					zap.L().Info("batch job done", zap.String("runID", runID), zap.String("file", job.File))
					return nil
				})
			}
			return batch.Wait()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML file listing jobs to run")
	flags.IntVar(&parallelism, "parallelism", 4, "number of concurrent engine instances")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runBatchJob(job batchJob) error {
	ifd, fs, tio, err := openEngine(job.File, job.IFD, false)
	if err != nil {
		return err
	}
	defer fs.Close()
	defer ifd.Close()

	codec, err := codecFor(job.Compression)
	if err != nil {
		return err
	}

	switch job.Op {
	case "read":
		opts := tiffrw.DefaultMapOptions()
		rm, err := tiffrw.NewReadMap(ifd, codec, tio, opts)
		if err != nil {
			return err
		}
		buf, err := rm.LoadSamples(job.X, job.Y, job.W, job.H)
		if err != nil {
			return err
		}
		return os.WriteFile(job.Path, buf, 0644)
	case "write":
		buf, err := os.ReadFile(job.Path)
		if err != nil {
			return err
		}
		opts := tiffrw.DefaultMapOptions()
		wm, err := tiffrw.NewWriteMap(ifd, codec, tio, opts, false)
		if err != nil {
			return err
		}
		if err := wm.PreloadAndStore(tiffrw.NewRect(job.X, job.Y, job.W, job.H), false); err != nil {
			return err
		}
		if _, err := wm.UpdateSampleBytes(job.X, job.Y, job.W, job.H, buf); err != nil {
			return err
		}
		return wm.CompleteWriting()
	default:
		return fmt.Errorf("unknown op %q", job.Op)
	}
}
