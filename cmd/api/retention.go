package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pulsechat/internal/pkg/chat/application/retention"
)

var retentionTimeout time.Duration

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Message and conversation retention tools",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run both eviction passes once against the configured store",
	Long: `Run both eviction passes once against the configured store.

The command runs in its own process. It cannot see the in-progress guards of
a running server, so it may overlap a scheduled or admin-triggered pass on the
same store. Deletes are idempotent; an overlapping pass only reports smaller
counts.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		m, err := openMirror(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open mirror: %w", err)
		}
		defer m.Close()

		s := retention.New(store, m, retention.Config{
			MessageTTL:    cfg.Retention.MessageTTL,
			InactivityTTL: cfg.Retention.InactivityTTL,
			BatchSize:     cfg.Retention.BatchSize,
		}, nil, log)

		if retentionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, retentionTimeout)
			defer cancel()
		}
		res, err := s.RunManual(ctx)
		if err != nil {
			log.Error("retention_run_failed", zap.Error(err))
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	retentionRunCmd.Flags().DurationVar(&retentionTimeout, "timeout", 10*time.Minute, "abort the run after this long (0 disables)")
	retentionCmd.AddCommand(retentionRunCmd)
}
