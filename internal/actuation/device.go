package actuation

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// LineDevice speaks a newline-terminated text protocol to a device node,
// typically a serial bridge: "ARM", "INTENSITY <n>", "FIRE <n>", "ON" and
// "OFF".
type LineDevice struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewLineDevice writes commands to w.
func NewLineDevice(w io.Writer) *LineDevice {
	d := &LineDevice{w: w}
	if c, ok := w.(io.Closer); ok {
		d.c = c
	}
	return d
}

// OpenLineDevice opens the device node at path for writing.
func OpenLineDevice(path string) (*LineDevice, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return NewLineDevice(f), nil
}

func (d *LineDevice) send(ctx context.Context, format string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.w, format+"\n", args...); err != nil {
		return fmt.Errorf("write device: %w", err)
	}
	return nil
}

func (d *LineDevice) Arm(ctx context.Context) error { return d.send(ctx, "ARM") }

func (d *LineDevice) SetIntensity(ctx context.Context, level int) error {
	return d.send(ctx, "INTENSITY %d", level)
}

func (d *LineDevice) Fire(ctx context.Context, level int) error {
	return d.send(ctx, "FIRE %d", level)
}

func (d *LineDevice) On(ctx context.Context) error  { return d.send(ctx, "ON") }
func (d *LineDevice) Off(ctx context.Context) error { return d.send(ctx, "OFF") }

// Close closes the device node, if it has one.
func (d *LineDevice) Close() error {
	if d.c == nil {
		return nil
	}
	return d.c.Close()
}
