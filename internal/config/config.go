package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete brainnet configuration
type Config struct {
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Board      BoardConfig      `mapstructure:"board"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Actuation  ActuationConfig  `mapstructure:"actuation"`
	Lights     LightsConfig     `mapstructure:"lights"`
	Timing     TimingConfig     `mapstructure:"timing"`
	Network    NetworkConfig    `mapstructure:"network"`
	Peers      PeersConfig      `mapstructure:"peers"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Display    DisplayConfig    `mapstructure:"display"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// ExperimentConfig controls the trial schedule
type ExperimentConfig struct {
	// ID names the experiment run. Empty means a random UUID is assigned at start.
	ID string `mapstructure:"id"`
	// Rounds is the number of decision rounds per trial (default: 2)
	Rounds int `mapstructure:"rounds"`
	// Condition selects the trial order file ref/Condition<N>.yaml
	Condition int `mapstructure:"condition"`
	// OrderDir is the directory holding the trial order files (default: "ref")
	OrderDir string `mapstructure:"order_dir"`
	// ExperimentalTrials and ControlTrials size generated trial orders
	ExperimentalTrials int `mapstructure:"experimental_trials"`
	ControlTrials      int `mapstructure:"control_trials"`
	// Conditions is how many order files `conditions generate` writes (default: 6)
	Conditions int `mapstructure:"conditions"`
	// DataDir is where per-experiment logs are written (default: "data")
	DataDir string `mapstructure:"data_dir"`
}

// BoardConfig controls the shared block-game board
type BoardConfig struct {
	// Rows includes the floor row (default: 10)
	Rows int `mapstructure:"rows"`
	// Cols must be a multiple of 3 (default: 12)
	Cols int `mapstructure:"cols"`
	// Seed seeds board and piece generation. 0 means time-seeded.
	Seed int64 `mapstructure:"seed"`
}

// ClassifierConfig controls the cursor-channel classifier
type ClassifierConfig struct {
	// WindowWidth is the cursor track width in pixels (default: 1920)
	WindowWidth int `mapstructure:"window_width"`
	// BoundaryMargin is the distance of each boundary from the track edge (default: 200)
	BoundaryMargin int `mapstructure:"boundary_margin"`
	// CursorRadius is the cursor radius in pixels (default: 60)
	CursorRadius int `mapstructure:"cursor_radius"`
	// Step is the cursor displacement per vote in pixels (default: 50)
	Step int `mapstructure:"step"`
	// HighFreq and LowFreq are the compared stimulus frequencies in Hz
	HighFreq int `mapstructure:"high_freq"`
	LowFreq  int `mapstructure:"low_freq"`
	// CollectDuration is the classification budget (default: 15s)
	CollectDuration time.Duration `mapstructure:"collect_duration"`
	// WindowDuration is the span of signal behind each vote (default: 2s)
	WindowDuration time.Duration `mapstructure:"window_duration"`
	// DriftCorrection removes a linear trend from each window before the PSD
	DriftCorrection bool `mapstructure:"drift_correction"`
	// StarvationTimeout bounds the wait for one packet from a live source
	StarvationTimeout time.Duration `mapstructure:"starvation_timeout"`
	// Simulated source pacing
	SimulatedWarmup   time.Duration `mapstructure:"simulated_warmup"`
	SimulatedInterval time.Duration `mapstructure:"simulated_interval"`
	SimulatedSteps    int           `mapstructure:"simulated_steps"`
	// TieBreakHold is how long the collision stays on screen after a timeout decision
	TieBreakHold time.Duration `mapstructure:"tie_break_hold"`
}

// LeftBoundary returns the x coordinate of the affirmative boundary.
func (c *ClassifierConfig) LeftBoundary() int { return c.BoundaryMargin }

// RightBoundary returns the x coordinate of the negative boundary.
func (c *ClassifierConfig) RightBoundary() int { return c.WindowWidth - c.BoundaryMargin }

// Midpoint returns the cursor start position.
func (c *ClassifierConfig) Midpoint() int { return c.WindowWidth / 2 }

// ActuationConfig controls the covert stimulation device
type ActuationConfig struct {
	// Enabled selects the hardware actuator. When false a dry-run actuator logs firings.
	Enabled bool `mapstructure:"enabled"`
	// Device is the serial device or address of the stimulator
	Device string `mapstructure:"device"`
	// HighIntensity is used for an affirmative decision, LowIntensity otherwise.
	// Both are percentages with 0 < low < high < 100.
	HighIntensity int `mapstructure:"high_intensity"`
	LowIntensity  int `mapstructure:"low_intensity"`
}

// LightsConfig controls the stimulus light board
type LightsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Device  string `mapstructure:"device"`
}

// TimingConfig holds every pacing sleep of the round protocol
type TimingConfig struct {
	// SafetyDelay separates the two firings of one round. It is never skipped.
	SafetyDelay time.Duration `mapstructure:"safety_delay"`
	// PostActuation is the pause after both firings (default: 5s)
	PostActuation time.Duration `mapstructure:"post_actuation"`
	// PreFlash is the pause between the prompt and the crosshair flash (default: 2s)
	PreFlash time.Duration `mapstructure:"pre_flash"`
	// Flash is how long the crosshair stays red (default: 800ms)
	Flash time.Duration `mapstructure:"flash"`
	// PeerBoardView is how long a peer studies the board before classifying (default: 10s)
	PeerBoardView time.Duration `mapstructure:"peer_board_view"`
	// PeerFeedback is the pause after a peer reports its decision or sees the result (default: 3s)
	PeerFeedback time.Duration `mapstructure:"peer_feedback"`
	// CommitStep separates the animation steps of the commit phase (default: 1s)
	CommitStep time.Duration `mapstructure:"commit_step"`
	// ClearHold is how long the cleared board stays on screen (default: 2s)
	ClearHold time.Duration `mapstructure:"clear_hold"`
}

// NetworkConfig controls the coordinator/peer transport
type NetworkConfig struct {
	// ListenAddr is the coordinator's websocket listen address (default: ":9999")
	ListenAddr string `mapstructure:"listen_addr"`
	// CoordinatorURL is the websocket endpoint peers dial
	CoordinatorURL string `mapstructure:"coordinator_url"`
	// ReceiveTimeout bounds every blocking receive. 0 blocks forever.
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
}

// PeersConfig controls which peers take part
type PeersConfig struct {
	// Enabled lists the peers that are physically present. Others are simulated.
	Enabled []string `mapstructure:"enabled"`
	// MockSeed seeds the decisions drawn for simulated peers
	MockSeed int64 `mapstructure:"mock_seed"`
}

// IsEnabled reports whether peer is in the enabled list.
func (p *PeersConfig) IsEnabled(peer string) bool {
	for _, id := range p.Enabled {
		if id == peer {
			return true
		}
	}
	return false
}

// SignalConfig selects and configures the classifier's signal source
type SignalConfig struct {
	// Source is one of "simulated", "tcp" or "synthetic" (default: "simulated")
	Source string `mapstructure:"source"`
	// Address is the host:port of a CSV sample stream for the "tcp" source
	Address string `mapstructure:"address"`
	// SampleRate is the amplifier sample rate in Hz (default: 250)
	SampleRate int `mapstructure:"sample_rate"`
	// PacketSize is the number of samples per packet (default: 10)
	PacketSize int `mapstructure:"packet_size"`
	// Channel is the zero-based CSV column used for classification
	Channel int `mapstructure:"channel"`
	// SyntheticFreq is the dominant frequency of the synthetic source in Hz
	SyntheticFreq float64 `mapstructure:"synthetic_freq"`
}

// DisplayConfig controls the render loop
type DisplayConfig struct {
	// FPS is the render loop cadence (default: 20)
	FPS int `mapstructure:"fps"`
	// Headless disables the terminal UI even on a TTY
	Headless bool `mapstructure:"headless"`
}

// FrameInterval returns the render loop period.
func (d *DisplayConfig) FrameInterval() time.Duration {
	if d.FPS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(d.FPS)
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug.log is written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// StorageConfig controls the SQLite record store
type StorageConfig struct {
	// Enabled controls whether round and trial records are persisted (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Path is the database file. Empty means <data_dir>/brainnet.db.
	Path string `mapstructure:"path"`
}

// ResolvePath returns the database path, defaulting under dataDir.
// A leading ~ expands to the user's home directory.
func (s *StorageConfig) ResolvePath(dataDir string) string {
	if s.Path == "" {
		return filepath.Join(dataDir, "brainnet.db")
	}
	path := s.Path
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// Default returns a Config with the values the experiment was run with
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			ID:                 "",
			Rounds:             2,
			Condition:          0,
			OrderDir:           "ref",
			ExperimentalTrials: 20,
			ControlTrials:      10,
			Conditions:         6,
			DataDir:            "data",
		},
		Board: BoardConfig{
			Rows: 10,
			Cols: 12,
		},
		Classifier: ClassifierConfig{
			WindowWidth:       1920,
			BoundaryMargin:    200,
			CursorRadius:      60,
			Step:              50,
			HighFreq:          17,
			LowFreq:           15,
			CollectDuration:   15 * time.Second,
			WindowDuration:    2 * time.Second,
			DriftCorrection:   false,
			StarvationTimeout: 5 * time.Second,
			SimulatedWarmup:   2 * time.Second,
			SimulatedInterval: 2 * time.Second,
			SimulatedSteps:    5,
			TieBreakHold:      2 * time.Second,
		},
		Actuation: ActuationConfig{
			Enabled:       false,
			HighIntensity: 70,
			LowIntensity:  55,
		},
		Lights: LightsConfig{
			Enabled: false,
		},
		Timing: TimingConfig{
			SafetyDelay:   8 * time.Second, // stimulator needs ~1.5s to recharge; 8s is the safety floor
			PostActuation: 5 * time.Second,
			PreFlash:      2 * time.Second,
			Flash:         800 * time.Millisecond,
			PeerBoardView: 10 * time.Second,
			PeerFeedback:  3 * time.Second,
			CommitStep:    time.Second,
			ClearHold:     2 * time.Second,
		},
		Network: NetworkConfig{
			ListenAddr:     ":9999",
			CoordinatorURL: "ws://localhost:9999/peer",
			ReceiveTimeout: 0,
		},
		Peers: PeersConfig{
			Enabled:  []string{"c1", "c2"},
			MockSeed: 1,
		},
		Signal: SignalConfig{
			Source:        "simulated",
			Address:       "localhost:5555",
			SampleRate:    250,
			PacketSize:    10,
			Channel:       0,
			SyntheticFreq: 15,
		},
		Display: DisplayConfig{
			FPS:      20,
			Headless: false,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Experiment defaults
	viper.SetDefault("experiment.id", defaults.Experiment.ID)
	viper.SetDefault("experiment.rounds", defaults.Experiment.Rounds)
	viper.SetDefault("experiment.condition", defaults.Experiment.Condition)
	viper.SetDefault("experiment.order_dir", defaults.Experiment.OrderDir)
	viper.SetDefault("experiment.experimental_trials", defaults.Experiment.ExperimentalTrials)
	viper.SetDefault("experiment.control_trials", defaults.Experiment.ControlTrials)
	viper.SetDefault("experiment.conditions", defaults.Experiment.Conditions)
	viper.SetDefault("experiment.data_dir", defaults.Experiment.DataDir)

	// Board defaults
	viper.SetDefault("board.rows", defaults.Board.Rows)
	viper.SetDefault("board.cols", defaults.Board.Cols)
	viper.SetDefault("board.seed", defaults.Board.Seed)

	// Classifier defaults
	viper.SetDefault("classifier.window_width", defaults.Classifier.WindowWidth)
	viper.SetDefault("classifier.boundary_margin", defaults.Classifier.BoundaryMargin)
	viper.SetDefault("classifier.cursor_radius", defaults.Classifier.CursorRadius)
	viper.SetDefault("classifier.step", defaults.Classifier.Step)
	viper.SetDefault("classifier.high_freq", defaults.Classifier.HighFreq)
	viper.SetDefault("classifier.low_freq", defaults.Classifier.LowFreq)
	viper.SetDefault("classifier.collect_duration", defaults.Classifier.CollectDuration)
	viper.SetDefault("classifier.window_duration", defaults.Classifier.WindowDuration)
	viper.SetDefault("classifier.drift_correction", defaults.Classifier.DriftCorrection)
	viper.SetDefault("classifier.starvation_timeout", defaults.Classifier.StarvationTimeout)
	viper.SetDefault("classifier.simulated_warmup", defaults.Classifier.SimulatedWarmup)
	viper.SetDefault("classifier.simulated_interval", defaults.Classifier.SimulatedInterval)
	viper.SetDefault("classifier.simulated_steps", defaults.Classifier.SimulatedSteps)
	viper.SetDefault("classifier.tie_break_hold", defaults.Classifier.TieBreakHold)

	// Actuation defaults
	viper.SetDefault("actuation.enabled", defaults.Actuation.Enabled)
	viper.SetDefault("actuation.device", defaults.Actuation.Device)
	viper.SetDefault("actuation.high_intensity", defaults.Actuation.HighIntensity)
	viper.SetDefault("actuation.low_intensity", defaults.Actuation.LowIntensity)

	// Lights defaults
	viper.SetDefault("lights.enabled", defaults.Lights.Enabled)
	viper.SetDefault("lights.device", defaults.Lights.Device)

	// Timing defaults
	viper.SetDefault("timing.safety_delay", defaults.Timing.SafetyDelay)
	viper.SetDefault("timing.post_actuation", defaults.Timing.PostActuation)
	viper.SetDefault("timing.pre_flash", defaults.Timing.PreFlash)
	viper.SetDefault("timing.flash", defaults.Timing.Flash)
	viper.SetDefault("timing.peer_board_view", defaults.Timing.PeerBoardView)
	viper.SetDefault("timing.peer_feedback", defaults.Timing.PeerFeedback)
	viper.SetDefault("timing.commit_step", defaults.Timing.CommitStep)
	viper.SetDefault("timing.clear_hold", defaults.Timing.ClearHold)

	// Network defaults
	viper.SetDefault("network.listen_addr", defaults.Network.ListenAddr)
	viper.SetDefault("network.coordinator_url", defaults.Network.CoordinatorURL)
	viper.SetDefault("network.receive_timeout", defaults.Network.ReceiveTimeout)

	// Peers defaults
	viper.SetDefault("peers.enabled", defaults.Peers.Enabled)
	viper.SetDefault("peers.mock_seed", defaults.Peers.MockSeed)

	// Signal defaults
	viper.SetDefault("signal.source", defaults.Signal.Source)
	viper.SetDefault("signal.address", defaults.Signal.Address)
	viper.SetDefault("signal.sample_rate", defaults.Signal.SampleRate)
	viper.SetDefault("signal.packet_size", defaults.Signal.PacketSize)
	viper.SetDefault("signal.channel", defaults.Signal.Channel)
	viper.SetDefault("signal.synthetic_freq", defaults.Signal.SyntheticFreq)

	// Display defaults
	viper.SetDefault("display.fps", defaults.Display.FPS)
	viper.SetDefault("display.headless", defaults.Display.Headless)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Storage defaults
	viper.SetDefault("storage.enabled", defaults.Storage.Enabled)
	viper.SetDefault("storage.path", defaults.Storage.Path)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "brainnet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brainnet"
	}
	return filepath.Join(home, ".config", "brainnet")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// PeerIDs returns the fixed peer identifiers in firing order.
func PeerIDs() []string {
	return []string{"c1", "c2"}
}

// ValidSignalSources returns the list of valid signal.source values
func ValidSignalSources() []string {
	return []string{"simulated", "tcp", "synthetic"}
}
