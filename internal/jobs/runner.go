package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"tickd/internal/config"
	"tickd/internal/eventbus"
	"tickd/internal/schedule"
	"tickd/internal/storage"
	"tickd/pkg/logx"
	"tickd/pkg/timer"
)

// Runner owns the configured jobs and keeps them in sync with the
// timer engine across config reloads.
type Runner struct {
	ctx   context.Context
	log   logx.Logger
	tm    *timer.Timer
	bus   eventbus.Bus
	store storage.Store

	mu      sync.Mutex
	jobs    map[string]*job
	cfgs    []config.JobConfig
	stopped bool
}

// NewRunner wires a runner against the shared timer. ctx bounds the
// lifetime of every command the runner executes. bus and store may be
// nil.
func NewRunner(ctx context.Context, log logx.Logger, tm *timer.Timer, bus eventbus.Bus, store storage.Store) *Runner {
	return &Runner{
		ctx:   ctx,
		log:   log,
		tm:    tm,
		bus:   bus,
		store: store,
		jobs:  make(map[string]*job),
	}
}

// Apply reconciles the registered jobs with the given config. Jobs
// that disappeared or changed are deregistered, new or changed ones
// are registered. Called at startup and on every config reload.
func (r *Runner) Apply(cfgs []config.JobConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return timer.ErrShutdown
	}

	added, removed := config.DiffJobs(r.cfgs, cfgs)

	for _, jc := range removed {
		r.deregisterLocked(jc.Name)
	}

	var firstErr error
	for _, jc := range added {
		if !jc.IsEnabled() {
			continue
		}
		if err := r.registerLocked(jc); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.cfgs = cfgs
	return firstErr
}

// Stop deregisters every job. Commands already running keep going
// until their own timeout or the runner context ends.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	for name := range r.jobs {
		r.deregisterLocked(name)
	}
}

// Names returns the registered job names, sorted.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) registerLocked(jc config.JobConfig) error {
	spec, err := schedule.Parse(jc.Schedule)
	if err != nil {
		return err
	}
	timeout, err := config.ParseDurationField("jobs."+jc.Name+".timeout", jc.Timeout)
	if err != nil {
		return err
	}

	j := &job{
		runner:  r,
		name:    jc.Name,
		spec:    spec,
		command: jc.Command,
		dir:     jc.Dir,
		env:     jc.Env,
		timeout: timeout,
		once:    jc.Once,
	}
	if err := j.register(r.tm); err != nil {
		return err
	}
	r.jobs[jc.Name] = j
	r.log.Info("job registered",
		logx.String("job", jc.Name),
		logx.String("schedule", spec.Source),
		logx.Bool("once", jc.Once))
	return nil
}

func (r *Runner) deregisterLocked(name string) {
	j, ok := r.jobs[name]
	if !ok {
		return
	}
	j.gone.Store(true)
	r.tm.Remove(j, nil, true)
	delete(r.jobs, name)
	r.log.Info("job deregistered", logx.String("job", name))
}

func (r *Runner) publish(kind string, ev eventbus.JobEvent) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Kind: kind, Time: time.Now(), Data: ev})
}

func (r *Runner) record(entry storage.RunEntry) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.AppendRun(ctx, entry); err != nil {
		r.log.Warn("run record not stored",
			logx.String("job", entry.Job),
			logx.Err(err))
	}
}
