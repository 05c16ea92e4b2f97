package trial

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Order is the sequence of trial tags for one condition.
type Order []string

// Controls reports, per trial, whether it is a control trial.
func (o Order) Controls() []bool {
	out := make([]bool, len(o))
	for i, tag := range o {
		out[i] = tag == wire.TagControl
	}
	return out
}

// Count returns the number of experimental and control trials.
func (o Order) Count() (experimental, control int) {
	for _, tag := range o {
		if tag == wire.TagControl {
			control++
		} else {
			experimental++
		}
	}
	return experimental, control
}

// Validate rejects empty orders and unknown tags.
func (o Order) Validate() error {
	if len(o) == 0 {
		return fmt.Errorf("trial order is empty")
	}
	for i, tag := range o {
		if tag != wire.TagControl && tag != wire.TagExperimental {
			return fmt.Errorf("trial %d: unknown tag %q", i, tag)
		}
	}
	return nil
}

// Generate shuffles experimental and control tags for condition. The
// shuffle is seeded by the condition number so every run of the same
// condition sees the same order.
func Generate(condition, experimental, control int) Order {
	o := make(Order, 0, experimental+control)
	for range experimental {
		o = append(o, wire.TagExperimental)
	}
	for range control {
		o = append(o, wire.TagControl)
	}

	seed := uint64(condition * 17)
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(o), func(i, j int) { o[i], o[j] = o[j], o[i] })
	return o
}

// Path returns the file of condition within dir.
func Path(dir string, condition int) string {
	return filepath.Join(dir, fmt.Sprintf("Condition%d.yaml", condition))
}

// Load reads and validates an order file.
func Load(path string) (Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trial order: %w", err)
	}
	var o Order
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse trial order %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

// Save writes o as a YAML list.
func Save(path string, o Order) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create order directory: %w", err)
	}
	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal trial order: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trial order: %w", err)
	}
	return nil
}

// GenerateAll writes one order file per condition into dir and returns the
// paths written.
func GenerateAll(dir string, conditions, experimental, control int) ([]string, error) {
	paths := make([]string, 0, conditions)
	for c := range conditions {
		p := Path(dir, c)
		if err := Save(p, Generate(c, experimental, control)); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
