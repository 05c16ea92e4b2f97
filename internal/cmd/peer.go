package cmd

import (
	"fmt"
	"os"
	ossignal "os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/config"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/protocol"
)

var peerID string

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a sending node (c1 or c2)",
	Long: `Run a sending node.

The peer dials the coordinator, announces READY and then classifies its own
signal once per round, reporting whether the piece should be turned.`,
	Example: "  brainnet peer --id c1 --coordinator ws://10.0.0.5:9999",
	Args:    cobra.NoArgs,
	RunE:    runPeer,
}

func init() {
	peerCmd.Flags().StringVar(&peerID, "id", "", "peer identity ("+strings.Join(config.PeerIDs(), " or ")+")")
	peerCmd.Flags().String("coordinator", "", "coordinator websocket URL (overrides network.coordinator_url)")
	peerCmd.Flags().Bool("headless", false, "render to stdout instead of the terminal UI")
	_ = peerCmd.MarkFlagRequired("id")
	_ = viper.BindPFlag("network.coordinator_url", peerCmd.Flags().Lookup("coordinator"))
}

func runPeer(cmd *cobra.Command, args []string) error {
	if !slices.Contains(config.PeerIDs(), peerID) {
		return apperrors.NewConfigError("id", peerID, "must be one of "+strings.Join(config.PeerIDs(), ", "))
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if headless, _ := cmd.Flags().GetBool("headless"); headless {
		cfg.Display.Headless = true
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(cfg, peerID)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	lights, err := n.lights()
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

	client, err := channel.Dial(ctx, cfg.Network.CoordinatorURL, peerID, channel.Options{ReceiveTimeout: cfg.Network.ReceiveTimeout}, n.logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	peer, err := protocol.NewPeer(protocol.PeerConfig{
		ID:         peerID,
		Channel:    client,
		Game:       n.game(),
		Display:    n.display,
		Classifier: n.classifier(),
		Votes:      votes,
		Lights:     lights,
		Clock:      n.clock,
		Bus:        n.bus,
		Recorder:   recorder,
		Logger:     n.logger,
		Rounds:     cfg.Experiment.Rounds,
		Timing: protocol.PeerTiming{
			BoardView: cfg.Timing.PeerBoardView,
			Feedback:  cfg.Timing.PeerFeedback,
			Step:      cfg.Timing.CommitStep,
		},
	})
	if err != nil {
		return err
	}

	if err := n.run(ctx, "brainnet "+peerID, peer.Run); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Finished %d trials.\n", len(peer.Trials()))
	return nil
}
