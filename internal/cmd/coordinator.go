package cmd

import (
	"fmt"
	"net"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/config"
	"github.com/Iron-Ham/brainnet/internal/protocol"
	"github.com/Iron-Ham/brainnet/internal/trial"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the receiving node (C0)",
	Long: `Run the receiving node.

The coordinator listens for both peers, waits until every enabled peer has
announced READY and then plays the trial order of the configured condition.
Peers that are not listed in peers.enabled are simulated.`,
	Args: cobra.NoArgs,
	RunE: runCoordinator,
}

func init() {
	coordinatorCmd.Flags().Int("condition", 0, "trial order condition to run")
	coordinatorCmd.Flags().String("listen", "", "websocket listen address (overrides network.listen_addr)")
	coordinatorCmd.Flags().Bool("headless", false, "render to stdout instead of the terminal UI")
	_ = viper.BindPFlag("experiment.condition", coordinatorCmd.Flags().Lookup("condition"))
	_ = viper.BindPFlag("network.listen_addr", coordinatorCmd.Flags().Lookup("listen"))
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if headless, _ := cmd.Flags().GetBool("headless"); headless {
		cfg.Display.Headless = true
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	order, err := trial.Load(trial.Path(cfg.Experiment.OrderDir, cfg.Experiment.Condition))
	if err != nil {
		return fmt.Errorf("load trial order: %w", err)
	}

	n, err := newNode(cfg, channel.Coordinator)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	act, err := n.actuator()
	if err != nil {
		return err
	}
	lights, err := n.lights()
	if err != nil {
		return err
	}
	seq, err := actuation.NewSequencer(act, n.display, n.clock, actuation.Timing{
		PreFlash:    cfg.Timing.PreFlash,
		Flash:       cfg.Timing.Flash,
		SafetyDelay: cfg.Timing.SafetyDelay,
		Post:        cfg.Timing.PostActuation,
	}, actuation.Intensities{
		High: cfg.Actuation.HighIntensity,
		Low:  cfg.Actuation.LowIntensity,
	}, n.logger)
	if err != nil {
		return err
	}
	votes, err := n.votes(ctx)
	if err != nil {
		return err
	}
	recorder, err := n.recorder(ctx)
	if err != nil {
		return err
	}

	hub := channel.NewHub(config.PeerIDs(), channel.Options{ReceiveTimeout: cfg.Network.ReceiveTimeout}, n.logger)
	defer func() { _ = hub.Close() }()
	ln, err := net.Listen("tcp", cfg.Network.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Network.ListenAddr, err)
	}
	go func() {
		if err := hub.Serve(ln); err != nil {
			n.logger.Error("hub stopped", "error", err.Error())
		}
	}()
	n.logger.Info("listening for peers", "addr", ln.Addr().String(), "enabled", cfg.Peers.Enabled)

	coord, err := protocol.NewCoordinator(protocol.CoordinatorConfig{
		Channel:    hub,
		Game:       n.game(),
		Display:    n.display,
		Classifier: n.classifier(),
		Votes:      votes,
		Sequencer:  seq,
		Lights:     lights,
		Clock:      n.clock,
		Bus:        n.bus,
		Recorder:   recorder,
		Logger:     n.logger,
		Peers:      config.PeerIDs(),
		Enabled:    cfg.Peers.Enabled,
		Rounds:     cfg.Experiment.Rounds,
		Order:      order,
		MockSeed:   uint64(cfg.Peers.MockSeed),
		Timing: protocol.CoordinatorTiming{
			Step:      cfg.Timing.CommitStep,
			ClearHold: cfg.Timing.ClearHold,
		},
	})
	if err != nil {
		return err
	}

	if err := n.run(ctx, "brainnet coordinator", coord.Run); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Finished %d trials.\n", len(coord.Trials()))
	return nil
}
