package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

const DefaultRestartDelay = 2 * time.Second

// Supervisor starts and stops the java-tron node described by its
// settings. It keeps no state between invocations besides the PID file.
type Supervisor struct {
	settings     config.Settings
	pidFile      *PidFile
	signaler     Signaler
	policy       StopPolicy
	command      func(config.Settings) *exec.Cmd
	restartDelay time.Duration
	exited       chan struct{}
}

type Option func(*Supervisor)

func WithSignaler(s Signaler) Option     { return func(sv *Supervisor) { sv.signaler = s } }
func WithStopPolicy(p StopPolicy) Option { return func(sv *Supervisor) { sv.policy = p } }
func WithRestartDelay(d time.Duration) Option {
	return func(sv *Supervisor) { sv.restartDelay = d }
}

// WithCommand replaces the java command line, e.g. for a wrapper script.
func WithCommand(fn func(config.Settings) *exec.Cmd) Option {
	return func(sv *Supervisor) { sv.command = fn }
}

func New(settings config.Settings, opts ...Option) *Supervisor {
	sv := &Supervisor{
		settings:     settings,
		pidFile:      NewPidFile(settings.PIDFile),
		signaler:     unixSignaler{},
		policy:       DefaultStopPolicy(),
		command:      NodeCommand,
		restartDelay: DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(sv)
	}
	return sv
}

// NodeCommand builds the java invocation for the FullNode jar. The working
// directory is the jar's directory, where java-tron writes logs/tron.log.
func NodeCommand(s config.Settings) *exec.Cmd {
	cmd := exec.Command(s.JavaPath,
		"-Xms"+s.JVMMinHeap,
		"-Xmx"+s.JVMMaxHeap,
		"-jar", s.FullNodeJar,
		"-c", s.NodeConfig,
		"-d", s.DataDir,
	)
	cmd.Dir = filepath.Dir(s.FullNodeJar)
	return cmd
}

// Status reports the recorded PID and whether it is alive.
func (sv *Supervisor) Status() (int, bool, error) {
	pid, err := sv.pidFile.Read()
	if err != nil {
		return 0, false, err
	}
	return pid, sv.signaler.Alive(pid), nil
}

// Exited is closed when a node started by this Supervisor exits. It is nil
// before Start succeeds.
func (sv *Supervisor) Exited() <-chan struct{} { return sv.exited }

// Start launches the node unless a live one is already recorded.
func (sv *Supervisor) Start(ctx context.Context) (int, error) {
	log := utils.GetLogger("process/start")
	lock, err := sv.pidFile.TryLock()
	if err != nil {
		return 0, err
	}
	defer lock.Unlock()

	pid, err := sv.pidFile.Read()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable pid file")
	} else if pid > 0 && sv.signaler.Alive(pid) {
		return 0, &utils.AlreadyRunningError{PID: pid}
	}

	if err := os.MkdirAll(filepath.Dir(sv.settings.LogFile), 0755); err != nil {
		return 0, &utils.ProcessError{Op: "create log directory", Err: err}
	}
	logFile, err := os.OpenFile(sv.settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, &utils.ProcessError{Op: "open node log", Err: err}
	}
	cmd := sv.command(sv.settings)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	err = cmd.Start()
	logFile.Close()
	if err != nil {
		return 0, &utils.ProcessError{Op: "start node", Err: err}
	}
	pid = cmd.Process.Pid

	// reap the child so liveness probes from this process stay accurate
	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	if err := sv.pidFile.Write(pid); err != nil {
		cmd.Process.Kill()
		<-exited
		return 0, &utils.ProcessError{Op: "record pid", PID: pid, Err: err}
	}
	sv.exited = exited
	log.Info().Int("pid", pid).Str("log", sv.settings.LogFile).Msg("node started")
	return pid, nil
}

// Restart stops the node if it runs, waits, and starts it again.
func (sv *Supervisor) Restart(ctx context.Context) (int, error) {
	log := utils.GetLogger("process/restart")
	if err := sv.Stop(ctx, false); err != nil {
		if !errors.Is(err, utils.ErrNodeNotRunning) {
			return 0, err
		}
		log.Info().Msg("node was not running")
	}
	if err := sleep(ctx, sv.restartDelay); err != nil {
		return 0, err
	}
	return sv.Start(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
