package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hyperjump/facevault/internal/cli"
	"github.com/hyperjump/facevault/internal/enroll"
	"github.com/hyperjump/facevault/internal/extractor"
	"github.com/hyperjump/facevault/internal/models"
	"github.com/hyperjump/facevault/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnrollCmd(flags *globalFlags) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "enroll <image>...",
		Short: "Enroll face images for a tenant",
		Long: `Enroll one or more face images. Each image must contain a face;
the item id is derived from the tenant and the absolute file path, so
enrolling the same file twice is reported and skipped.

Example:
  facevault enroll --tenant acme photos/alice.jpg photos/bob.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			failed := 0
			for _, path := range args {
				res, err := c.Service.EnrollFile(ctx, tenant, path)
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s as %s (tenant %s, position %d)\n",
						path, res.ItemID, res.TenantID, res.Position)
				case errors.Is(err, enroll.ErrAlreadyEnrolled):
					fmt.Fprintf(cmd.OutOrStdout(), "Skipped %s: already enrolled\n", path)
				default:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed %s: %v\n", path, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d image(s) failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default from build.default_tenant)")
	return cmd
}

func newMatchCmd(flags *globalFlags) *cobra.Command {
	var (
		tenant    string
		limit     int
		threshold float32
		output    string
	)
	cmd := &cobra.Command{
		Use:   "match <image>",
		Short: "Find the enrolled faces closest to an image",
		Long: `Extract the face in the image and list the closest enrolled faces,
best first. Without --tenant every tenant is searched.

Examples:
  facevault match --tenant acme query.jpg
  facevault match --limit 3 --threshold 0.6 --output json query.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			q := &models.MatchQuery{TenantID: tenant, Limit: limit, Image: data}
			if cmd.Flags().Changed("threshold") {
				q.Threshold = &threshold
			}
			resp, err := c.Service.Match(cmd.Context(), q)
			if err != nil {
				return err
			}
			return cli.WriteMatchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "restrict matches to one tenant")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of matches (default from search.default_limit)")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "minimum similarity in [-1, 1] (default from search.similarity_threshold)")
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}

func newPurgeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <tenant>",
		Short: "Remove every face of a tenant",
		Long: `Soft-delete the tenant's vectors and delete its records. The vectors
are excluded from matches at once and physically removed by the next rebuild.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Service.PurgeTenant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged tenant %s: %d vector(s) marked, %d record(s) deleted\n",
				res.TenantID, res.VectorsMarked, res.RecordsDeleted)
			return nil
		},
	}
}

func newRebuildCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the record store",
		Long: `Rebuild the index from the active records, dropping soft-deleted and
orphaned vectors, then save the snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Service.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index: %d -> %d vector(s), %d record(s) skipped\n",
				res.VectorsBefore, res.VectorsAfter, res.Skipped)
			return nil
		},
	}
}

func newBuildIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build-index <directory>",
		Short: "Replace the index with the faces under a directory",
		Long: `Scan <directory>/<tenant>/<image> and rebuild the index and the record
store from scratch. Images directly in <directory> belong to the default
tenant. Images without a face are counted and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			rep, err := c.Service.BuildFromDirectory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d image(s): %d indexed, %d without a face, %d failed, %d tenant(s)\n",
				rep.Scanned, rep.Indexed, rep.NoFace, rep.Failed, len(rep.Tenants))
			return nil
		},
	}
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "watch [directory]...",
		Short: "Enroll images as they appear in watched directories",
		Long: `Watch the configured directories (plus any given) and enroll new images
for the tenant named by their first-level folder. Runs until interrupted and
saves the snapshot on exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			dirs := append([]string(nil), c.Config.Watch.Directories...)
			dirs = append(dirs, args...)
			if len(dirs) == 0 {
				return fmt.Errorf("no directories to watch (set watch.directories or pass one)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := newUploadWatcher(ctx, c, dirs)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Stop()
			if !noSync {
				w.SyncExistingFiles()
			}
			c.Logger.Info("watching", zap.Strings("directories", w.Directories()))
			<-ctx.Done()
			c.Logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip enrolling images already present at startup")
	return cmd
}

// newUploadWatcher wires watcher callbacks to the enrollment service.
func newUploadWatcher(ctx context.Context, c *Components, dirs []string) *watcher.Watcher {
	svc := c.Service
	logger := c.Logger
	onImage := func(root, path string) {
		tenant := svc.TenantForPath(root, path)
		res, err := svc.EnrollFile(ctx, tenant, path)
		switch {
		case err == nil:
			logger.Info("face enrolled",
				zap.String("path", path),
				zap.String("tenant", res.TenantID),
				zap.String("item", res.ItemID))
		case errors.Is(err, enroll.ErrAlreadyEnrolled):
			logger.Debug("already enrolled", zap.String("path", path))
		case errors.Is(err, extractor.ErrNoFaceDetected), errors.Is(err, extractor.ErrMultipleFacesDetected):
			logger.Info("image skipped", zap.String("path", path), zap.Error(err))
		default:
			logger.Warn("watch enroll failed", zap.String("path", path), zap.Error(err))
		}
	}
	onRemove := func(root, path string) {
		logger.Info("image removed; faces are deleted per tenant with purge",
			zap.String("path", path),
			zap.String("tenant", svc.TenantForPath(root, path)))
	}
	absDirs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			d = abs
		}
		absDirs = append(absDirs, d)
	}
	return watcher.NewWatcher(
		absDirs,
		c.Config.Watch.Extensions,
		c.Config.Watch.RecursiveOrDefault(),
		onImage,
		onRemove,
		watcher.WithLogger(logger),
	)
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and record store counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			c, err := setup(flags)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Service.Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	return cmd
}
