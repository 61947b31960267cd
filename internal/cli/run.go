package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/config"
	"github.com/LeJamon/xrpl-interceptor/internal/logging"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/metrics"
	"github.com/LeJamon/xrpl-interceptor/internal/status"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// runCmd represents the run command (default action)
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Intercept and relay the peer links of the validator network",
	Long: `Connect to every validator node, establish a link for every pair of
nodes and relay their peer traffic until interrupted:
- Each link presents each node with the other node's public key
- Every message is submitted to the controller (forward, mutate or drop)
- Configured delays, partitions and losses are applied after arbitration

This is the default command when no subcommand is specified.`,
	RunE: runInterceptor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Set run as the default command
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	}
}

func runInterceptor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires every component from cfg and blocks until all links have ended
// or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	peerCfg, err := cfg.PeerConfig()
	if err != nil {
		return err
	}

	var (
		arb    arbiter.Arbiter = arbiter.Passthrough{}
		client *arbiter.Client
	)
	if cfg.Controller.Enabled() {
		client, err = arbiter.NewClient(cfg.ClientConfig(), logger.Named("arbiter"))
		if err != nil {
			return err
		}
		defer client.Close()
		arb = client
		logger.Info("Using controller", zap.String("address", cfg.Controller.Address))
	} else {
		logger.Warn("No controller configured, forwarding every message as-is")
	}

	nodes, partitions, err := resolveTopology(ctx, cfg, client)
	if err != nil {
		return err
	}

	if cfg.Controller.AnnounceNodes && client != nil {
		if _, err := client.SendValidatorNodeInfo(ctx, nodes); err != nil {
			return fmt.Errorf("announce nodes: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	supervisor, err := peermanagement.NewSupervisor(peerCfg, nodes,
		peermanagement.WithArbiter(arb),
		peermanagement.WithPolicy(cfg.FaultPolicy(partitions...)),
		peermanagement.WithRecorder(metrics.NewRecorder(registry)),
		peermanagement.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Status.Address != "" {
		srv := status.NewServer(cfg.Status.Address, supervisor, registry, logger.Named("status"))
		g.Go(func() error {
			return srv.Run(gctx)
		})
		g.Go(func() error {
			srv.Pump(gctx, supervisor.Events())
			return nil
		})
	}

	g.Go(func() error {
		// The status server stops with the last link.
		defer cancel()
		return supervisor.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, peermanagement.ErrNoLinks) {
		logger.Error("No peer link could be established", zap.Error(err))
		return err
	}
	if err != nil {
		logger.Warn("Interceptor stopped with errors", zap.Error(err))
		return err
	}
	logger.Info("Interceptor stopped")
	return nil
}

// resolveTopology returns the validator nodes and the controller's
// partitions. With controller.fetch_topology the ports come from the
// controller and the configured nodes only supply the public keys.
func resolveTopology(ctx context.Context, cfg *config.Config, client *arbiter.Client) ([]topology.ValidatorNode, [][]int, error) {
	nodes, err := cfg.Nodes()
	if err != nil {
		return nil, nil, err
	}

	var partitions [][]int
	if cfg.Controller.FetchTopology && client != nil {
		network, err := client.GetConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch topology: %w", err)
		}
		if nodes, err = topology.FromNetwork(cfg.Topology.Host, network, nodes); err != nil {
			return nil, nil, err
		}
		for _, p := range network.Partitions {
			group := make([]int, len(p))
			for i, n := range p {
				group[i] = int(n)
			}
			partitions = append(partitions, group)
		}
	}

	if err := topology.Validate(nodes, cfg.Topology.StrictKeys); err != nil {
		return nil, nil, err
	}
	return nodes, partitions, nil
}
