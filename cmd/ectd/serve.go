package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/cli"
	"github.com/hyperjump/ectd/internal/server"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/watcher"
)

// newUploadWatcher builds the watcher that revalidates changed uploads.
func newUploadWatcher(c *Components) *watcher.Watcher {
	reval := watcher.NewRevalidator(c.Store, c.Validator,
		watcher.WithRevalidatorLogger(c.Logger),
		watcher.WithFilesRoot(c.Files.Root()),
	)
	opts := []watcher.Option{
		watcher.WithExtensions(c.Config.Watch.Extensions...),
		watcher.WithRecursive(c.Config.Watch.RecursiveOrDefault()),
	}
	if c.Debug {
		opts = append(opts, watcher.WithLogger(c.Logger))
	}
	return watcher.New(c.Config.Watch.Directories, reval, opts...)
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and revalidate uploads as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initializeComponents(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer c.Close()
			logger := c.Logger
			if port > 0 {
				c.Config.Server.Port = port
			}
			logger.Info("config loaded", zap.String("config_path", c.ConfigPath), zap.Bool("debug", c.Debug))

			watchSvc := newUploadWatcher(c)
			watchCtx, watchCancel := context.WithCancel(context.Background())
			defer watchCancel()
			if err := watchSvc.Start(watchCtx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			watchSvc.SyncExistingFiles()

			srv := server.NewServer(c.Store, c.Assembler, c.Validator, c.Exporter, c.Config, logger, watchSvc, c.ConfigPath)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()

			waitForSignal()
			logger.Info("Shutting down...")
			watchCancel()
			watchSvc.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override the configured listen port")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [directory...]",
		Short: "Revalidate uploads in the watched directories until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initializeComponents(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer c.Close()
			if len(args) > 0 {
				dirs, err := absPaths(args)
				if err != nil {
					return err
				}
				c.Config.Watch.Directories = dirs
			}
			if len(c.Config.Watch.Directories) == 0 {
				return errors.New("no directories to watch: pass them as arguments or set watch.directories")
			}
			watchSvc := newUploadWatcher(c)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := watchSvc.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			watchSvc.SyncExistingFiles()
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", strings.Join(watchSvc.Directories(), ", "))
			waitForSignal()
			watchSvc.Stop()
			return nil
		},
	}
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// statusResponse mirrors the JSON of GET /api/v1/status.
type statusResponse struct {
	Studies           int64 `json:"studies"`
	Documents         int64 `json:"documents"`
	ValidationResults int64 `json:"validation_results"`
	FailedValidations int64 `json:"failed_validations"`
	DiskUsageBytes    int64 `json:"exports_disk_usage_bytes"`
	Config            struct {
		ExportsRoot string `json:"exports_root"`
	} `json:"config"`
}

func (s *statusResponse) toStatus() cli.Status {
	return cli.Status{
		Stats: storage.Stats{
			Studies:           s.Studies,
			Documents:         s.Documents,
			ValidationResults: s.ValidationResults,
			FailedValidations: s.FailedValidations,
		},
		ExportsRoot:    s.Config.ExportsRoot,
		DiskUsageBytes: s.DiskUsageBytes,
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store counts and export disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			if serverURL != "" {
				res, err := statusViaHTTP(serverURL)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(cmd.OutOrStdout(), res.toStatus(), format)
			}
			c, err := initializeComponents(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer c.Close()
			stats, err := c.Store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read stats: %w", err)
			}
			status := cli.Status{Stats: stats, DatabasePath: c.Config.Storage.DatabasePath, ExportsRoot: c.Config.Export.ExportsRoot}
			if n, err := storage.DiskUsageBytes(c.Config.Export.ExportsRoot); err == nil {
				status.DiskUsageBytes = n
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "query a running server instead of the store (e.g. http://localhost:8080)")
	return cmd
}
