package process

import (
	"context"
	"errors"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"golang.org/x/sys/unix"
)

// StopPolicy bounds graceful shutdown. The node gets MaxPolls polls of
// PollInterval after SIGTERM, then SIGKILL, then ConfirmPolls more polls
// to disappear.
type StopPolicy struct {
	PollInterval time.Duration
	MaxPolls     int
	NoticeEvery  int
	ConfirmPolls int
}

func DefaultStopPolicy() StopPolicy {
	return StopPolicy{
		PollInterval: time.Second,
		MaxPolls:     30,
		NoticeEvery:  5,
		ConfirmPolls: 5,
	}
}

type stopState int

const (
	stopTerm stopState = iota
	stopWait
	stopKill
	stopConfirm
	stopDone
)

// Stop terminates the recorded node. The PID file is removed only once the
// process is gone; a missing or dead process yields ErrNodeNotRunning after
// clearing any stale record.
func (sv *Supervisor) Stop(ctx context.Context, force bool) error {
	log := utils.GetLogger("process/stop")
	lock, err := sv.pidFile.TryLock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	pid, err := sv.pidFile.Read()
	if err != nil {
		log.Warn().Err(err).Msg("removing unreadable pid file")
	}
	if err != nil || pid == 0 || !sv.signaler.Alive(pid) {
		if rmErr := sv.pidFile.Remove(); rmErr != nil {
			return rmErr
		}
		return utils.ErrNodeNotRunning
	}

	state := stopTerm
	if force {
		state = stopKill
	}
	polls := 0
	for {
		switch state {
		case stopTerm:
			log.Info().Int("pid", pid).Msg("sending SIGTERM")
			if err := sv.signaler.Signal(pid, unix.SIGTERM); err != nil && sv.signaler.Alive(pid) {
				return &utils.ProcessError{Op: "send SIGTERM", PID: pid, Err: err}
			}
			state = stopWait

		case stopWait:
			if !sv.signaler.Alive(pid) {
				state = stopDone
				continue
			}
			if polls >= sv.policy.MaxPolls {
				log.Warn().Int("pid", pid).Msg("node did not exit in time, sending SIGKILL")
				state = stopKill
				continue
			}
			if err := sleep(ctx, sv.policy.PollInterval); err != nil {
				return err
			}
			polls++
			if sv.policy.NoticeEvery > 0 && polls%sv.policy.NoticeEvery == 0 {
				log.Warn().Int("pid", pid).Dur("waited", time.Duration(polls)*sv.policy.PollInterval).Msg("still waiting for node to exit")
			}

		case stopKill:
			if err := sv.signaler.Signal(pid, unix.SIGKILL); err != nil && sv.signaler.Alive(pid) {
				return &utils.ProcessError{Op: "send SIGKILL", PID: pid, Err: err}
			}
			polls = 0
			state = stopConfirm

		case stopConfirm:
			if !sv.signaler.Alive(pid) {
				state = stopDone
				continue
			}
			if polls >= sv.policy.ConfirmPolls {
				return &utils.ProcessError{Op: "stop node", PID: pid, Err: errors.New("process still alive after SIGKILL")}
			}
			if err := sleep(ctx, sv.policy.PollInterval); err != nil {
				return err
			}
			polls++

		case stopDone:
			if err := sv.pidFile.Remove(); err != nil {
				return err
			}
			log.Info().Int("pid", pid).Msg("node stopped")
			return nil
		}
	}
}
