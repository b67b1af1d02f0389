// Command agentd is the minimal operational entrypoint for one composed
// agent (spec §6.3): it loads a template, composes it against a skill
// registry, boots the Plugin Host, and serves the HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentcore/platform/internal/config"
	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/a2a/transport"
	"github.com/agentcore/platform/pkg/agentruntime"
	"github.com/agentcore/platform/pkg/compose"
	"github.com/agentcore/platform/pkg/discovery"
	"github.com/agentcore/platform/pkg/dispatch"
	"github.com/agentcore/platform/pkg/pluginhost"
	"github.com/agentcore/platform/pkg/skillreg"
	"github.com/agentcore/platform/pkg/template"
)

var (
	templateDir  string
	templateName string
	listenAddr   string
	agentName    string
)

func main() {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "Runs one composed agent's operational surface",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load a template, compose it, and serve the agent's HTTP surface",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&templateDir, "templates", "./templates", "directory of agent templates")
	serve.Flags().StringVar(&templateName, "template", "", "name of the template to compose (required)")
	serve.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	serve.Flags().StringVar(&agentName, "name", "agent", "this agent's identity name")
	_ = serve.MarkFlagRequired("template")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewLogger(logger.DefaultConfig())
	ctx = logger.ContextWithLogger(ctx, log)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := template.NewStore()
	if err := store.LoadDir(templateDir); err != nil {
		return err
	}
	resolved, err := store.Resolve(templateName)
	if err != nil {
		return err
	}

	// This entrypoint registers no concrete skill implementations; it only
	// wires the generic platform, so the registry starts empty and
	// composition will fail fast with
	// SkillMissingRequired if the template names skills nobody registered.
	registry := skillreg.New()
	composer := compose.New(registry, nil)

	availableInfra := map[string]bool{}
	envOverrides := map[string]map[string]any{}
	plan, err := composer.Compose(resolved, envOverrides, availableInfra)
	if err != nil {
		return err
	}

	host := pluginhost.New()
	if err := host.Boot(ctx, plan); err != nil {
		return err
	}
	defer host.Shutdown(context.Background())

	dispatcher := dispatch.New(host)

	known := make(map[string]a2a.Identity, len(cfg.KnownAgents))
	for id, endpoint := range cfg.KnownAgents {
		known[id] = a2a.Identity{ID: id, Endpoint: endpoint}
	}
	directory := discovery.New(known, nil, discovery.DefaultCacheTTL)

	clientCfg := transport.DefaultClientConfig()
	clientCfg.DefaultTimeout = cfg.DefaultTimeout()
	clientCfg.MaxRetries = cfg.MaxRetries
	clientCfg.RetryDelay = cfg.RetryDelay()
	clientCfg.Breaker.FailureThreshold = cfg.CircuitOpenThreshold
	clientCfg.Breaker.Cooldown = cfg.CircuitCooldown()
	client := transport.NewClient(clientCfg)

	self := a2a.Identity{ID: uuid.NewString(), Name: agentName, Type: "agent", Version: resolved.Version, Endpoint: listenAddr}

	runtimeCfg := agentruntime.DefaultConfig()
	runtimeCfg.MaxInFlightPerDestination = cfg.MaxInFlightPerDestination
	runtimeCfg.MaxQueuedPerDestination = cfg.MaxQueuedPerDestination
	runtimeCfg.MaxParallelSteps = cfg.MaxParallelSteps
	rt := agentruntime.New(self, host, dispatcher, client, directory, runtimeCfg)
	rt.SetReady()

	directory.Advertise(self)

	engine := newHTTPServer(self, rt, host, dispatcher, cfg.AuthToken)
	srv := &http.Server{Addr: listenAddr, Handler: engine}

	go func() {
		<-ctx.Done()
		rt.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		rt.Stop()
	}()

	log.Info("agent serving", "address", listenAddr, "template", templateName)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
