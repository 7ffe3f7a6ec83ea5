package tor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout bounds Tor's bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// ErrNotRunning is returned by SocksAddr before Start succeeded.
var ErrNotRunning = errors.New("embedded Tor daemon is not running")

// Daemon manages an embedded Tor process.
//
// Starting takes 1-3 minutes: Tor downloads directory information, builds
// its first circuits and then opens the SOCKS and control listeners.
type Daemon struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
// Non-positive values keep the default.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// NewDaemon creates a Daemon. Call Start to launch Tor.
func NewDaemon(opts ...Option) *Daemon {
	d := &Daemon{startupTimeout: DefaultStartupTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches Tor on OS-assigned ports and waits for it to bootstrap.
// If ctx is cancelled during startup the process is stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	// Blocks until Tor has bootstrapped or the startup timeout passes.
	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // Best effort cleanup
		return err
	}

	d.process = process
	d.socksAddr = process.SocksAddr()
	d.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. It is safe to call on a stopped or
// never-started Daemon.
func (d *Daemon) Stop() error {
	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	d.socksAddr = ""
	d.controlAddr = ""
	return err
}

// Running reports whether the daemon is up.
func (d *Daemon) Running() bool {
	return d.process != nil
}

// SocksAddr returns the "host:port" of the SOCKS5 listener, for use as the
// fetcher proxy.
func (d *Daemon) SocksAddr() (string, error) {
	if !d.Running() {
		return "", ErrNotRunning
	}
	return d.socksAddr, nil
}

// ControlAddr returns the control port address, or "" when not running.
func (d *Daemon) ControlAddr() string {
	return d.controlAddr
}
