package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-engine/internal/browser"
	"github.com/sells-group/leadgen-engine/internal/extractor"
	"github.com/sells-group/leadgen-engine/internal/fetchengine"
	"github.com/sells-group/leadgen-engine/internal/orchestrator"
	"github.com/sells-group/leadgen-engine/internal/pacing"
	"github.com/sells-group/leadgen-engine/internal/proxypool"
	"github.com/sells-group/leadgen-engine/internal/resilience"
	"github.com/sells-group/leadgen-engine/pkg/anthropic"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign lifecycle commands",
}

var campaignRunCmd = &cobra.Command{
	Use:   "run <tenant-id> <campaign-id>",
	Short: "Drive one campaign to a terminal state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenantID, campaignID := args[0], args[1]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		proxies, err := proxypool.NewPool(cfg.Proxy.URLs, proxypool.Strategy(cfg.Proxy.RotationPolicy))
		if err != nil {
			return err
		}
		governor := pacing.NewGovernor()
		engine := fetchengine.NewEngine(browser.NullDriver{}, governor, proxies)

		llm := &extractor.AnthropicLLM{
			Client:    anthropic.NewClient(cfg.Anthropic.Key),
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}
		ext := extractor.NewExtractor(llm, time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second,
			extractor.WithCircuitBreakerConfig(resilience.FromCircuitConfig(cfg.Anthropic.CircuitFailureThreshold, cfg.Anthropic.CircuitResetTimeoutSecs)),
		)

		storeRetry := resilience.FromRetryConfig(cfg.Campaign.StoreWriteMaxAttempts, 0, 0, 0, 0)
		storeRetry.OnRetry = resilience.RetryLogger("store", "write")

		o := orchestrator.New(st, engine, ext, cfg.Campaign.MaxPostsDefault,
			orchestrator.WithStoreWriteTimeout(time.Duration(cfg.Campaign.StoreWriteTimeoutSecs)*time.Second),
			orchestrator.WithStoreRetry(storeRetry),
		)
		return o.Run(ctx, tenantID, campaignID, nil)
	},
}

func init() {
	campaignCmd.AddCommand(campaignRunCmd)
	rootCmd.AddCommand(campaignCmd)
}
