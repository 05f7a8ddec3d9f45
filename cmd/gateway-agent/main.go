// Package main is the gateway-agent command line entry point.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gateway-agent/internal/agent"
	"gateway-agent/internal/config"
	"gateway-agent/internal/credentials"
	"gateway-agent/internal/log"
	"gateway-agent/internal/mcp"
	"gateway-agent/internal/provider"
	"gateway-agent/internal/server"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "gateway-agent",
		Short: "Automated receipt and refund processing for the merchant gateway",
		Long: `gateway-agent drives a browser through the merchant payment gateway
using a model-controlled tool server. It can run as an HTTP service or
execute one-off browsing tasks from the command line.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.gateway-agent/config.yaml)")

	root.AddCommand(newServeCmd(), newBrowseCmd(), newToolsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func newProvider(cfg *config.Config) (*provider.AnthropicProvider, error) {
	if cfg.Anthropic.APIKey == "" {
		return nil, errors.New("no API key configured; set ANTHROPIC_API_KEY or anthropic.api_key")
	}
	return provider.NewAnthropicProviderWithKey(cfg.Anthropic.APIKey,
		provider.WithModel(cfg.Anthropic.Model),
		provider.WithMaxTokens(cfg.Anthropic.MaxTokens))
}

func newBrowserAgent(cfg *config.Config) (*agent.BrowserAgent, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	srv := agent.ServerCommand{
		Command: cfg.Browser.Command,
		Args:    cfg.BrowserArgs(),
	}
	return agent.NewBrowserAgent(p, srv,
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithRequestTimeout(cfg.Agent.RequestTimeout)), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log.SetLevel(log.ParseLevel(cfg.Log.Level))

			// Tee logs into the file served by /api/logs.
			if cfg.Log.File != "" {
				f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer f.Close()
				log.SetOutput(io.MultiWriter(os.Stderr, f))
			}

			browser, err := newBrowserAgent(cfg)
			if err != nil {
				return err
			}

			creds := credentials.NewManager(cfg.Secrets.File)
			session := server.NewVerificationSession(func() mcp.MCPClient {
				return mcp.NewStdioMCPClient(cfg.Browser.Command, cfg.BrowserArgs(), nil,
					mcp.WithRequestTimeout(cfg.Agent.RequestTimeout))
			}, cfg.Browser.GatewayURL, cfg.Browser.ProfileDir)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, creds, browser, session).ListenAndServe(ctx)
		},
	}
}

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse <task>",
		Short: "Run one browsing task and print the model's answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log.SetLevel(log.ParseLevel(cfg.Log.Level))

			browser, err := newBrowserAgent(cfg)
			if err != nil {
				return err
			}

			answer, err := browser.Browse(cmd.Context(), args[0])
			if errors.Is(err, agent.ErrMaxIterations) {
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the browser server exposes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log.SetLevel(log.ParseLevel(cfg.Log.Level))

			client := mcp.NewStdioMCPClient(cfg.Browser.Command, cfg.BrowserArgs(), nil,
				mcp.WithRequestTimeout(cfg.Agent.RequestTimeout))
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			infos, err := client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.Name, info.Description)
			}
			return nil
		},
	}
}
