package jobs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"tickd/internal/eventbus"
	"tickd/internal/schedule"
	"tickd/internal/storage"
	"tickd/pkg/logx"
	"tickd/pkg/timer"
)

const defaultJobTimeout = 10 * time.Minute

// job is a single configured command bound to the timer engine.
type job struct {
	runner *Runner

	name    string
	spec    schedule.Parsed
	command []string
	dir     string
	env     []string
	timeout time.Duration
	once    bool

	// gone flips when the job is deregistered. The timer checks it
	// through Alive before firing, so a removal that races a due
	// dispatch cannot execute a stale command.
	gone atomic.Bool
}

// TimerName labels this subscriber in timer logs.
func (j *job) TimerName() string { return "job:" + j.name }

// Alive reports whether the job is still registered.
func (j *job) Alive() bool { return !j.gone.Load() }

// Notify runs the command and, for cron jobs, re-arms the next
// activation. It executes on the timer worker goroutine.
func (j *job) Notify(parameter any) {
	j.run()

	if j.spec.Kind == schedule.KindCron && !j.once && !j.gone.Load() {
		j.rearm()
	}
}

// register adds the job to the timer. Interval jobs become periodic
// elements; cron jobs become once-elements for the next activation.
func (j *job) register(tm *timer.Timer) error {
	switch j.spec.Kind {
	case schedule.KindInterval:
		return tm.Add(j, j.spec.Every, nil, j.once)
	case schedule.KindCron:
		return tm.Add(j, j.spec.Next(time.Now()), nil, true)
	default:
		return errors.New("jobs: unknown schedule kind")
	}
}

// rearm schedules the next cron activation. Errors here mean the
// engine is shutting down, which is fine to drop.
func (j *job) rearm() {
	wait := j.spec.Next(time.Now())
	if err := j.runner.tm.Add(j, wait, nil, true); err != nil {
		j.runner.log.Debug("cron job not re-armed",
			logx.String("job", j.name),
			logx.Err(err))
	}
}

func (j *job) run() {
	r := j.runner
	start := time.Now()
	r.publish(eventbus.KindJobStarted, eventbus.JobEvent{Name: j.name, Started: start})

	timeout := j.timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, j.command[0], j.command[1:]...)
	cmd.Dir = j.dir
	if len(j.env) > 0 {
		cmd.Env = append(os.Environ(), j.env...)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	// The timeout must bound the whole execution, not just the direct
	// child: without WaitDelay, Run blocks until every descendant that
	// inherited the output pipes exits. Kill the process group on
	// cancellation and give stragglers one second to release the pipes.
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	err := cmd.Run()
	took := time.Since(start)

	exitCode := 0
	if err != nil {
		var xerr *exec.ExitError
		if errors.As(err, &xerr) {
			exitCode = xerr.ExitCode()
		} else {
			exitCode = -1
		}
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.New("timed out after " + timeout.String())
		}
	}

	if err != nil {
		r.log.Warn("job failed",
			logx.String("job", j.name),
			logx.Int("exit_code", exitCode),
			logx.Duration("took", took),
			logx.String("output", tailOf(buf.String())),
			logx.Err(err))
		r.publish(eventbus.KindJobFailed, eventbus.JobEvent{
			Name: j.name, Started: start, Duration: took, Error: err.Error(),
		})
	} else {
		r.log.Info("job finished",
			logx.String("job", j.name),
			logx.Duration("took", took))
		r.publish(eventbus.KindJobFinished, eventbus.JobEvent{
			Name: j.name, Started: start, Duration: took,
		})
	}

	r.record(storage.RunEntry{
		At:       start,
		Job:      j.name,
		OK:       err == nil,
		ExitCode: exitCode,
		Error:    errString(err),
		TookMS:   took.Milliseconds(),
	})
}

// tailOf keeps the last few lines of command output for the log line.
func tailOf(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
