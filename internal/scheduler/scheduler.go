// Package scheduler fires colour commands on cron specs taken from config.
package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ledremote/internal/config"
	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// Dispatcher accepts commands for the agent loop.
type Dispatcher interface {
	Dispatch(cmd core.Command) bool
}

// Entry is a registered schedule.
type Entry struct {
	ID      cron.EntryID
	Spec    string
	Command core.Command
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	cron       *cron.Cron
	store      map[cron.EntryID]config.ScheduleEntry
	dispatcher Dispatcher
	mu         sync.RWMutex
	log        *logrus.Entry
}

// NewScheduler creates a scheduler; entries are added with Add or Load.
func NewScheduler(dispatcher Dispatcher) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		store:      make(map[cron.EntryID]config.ScheduleEntry),
		dispatcher: dispatcher,
		log:        logging.For("scheduler"),
	}
}

// Load registers every entry, stopping at the first invalid one.
func (s *Scheduler) Load(entries []config.ScheduleEntry) error {
	for _, e := range entries {
		if _, err := s.Add(e.Spec, e.Command); err != nil {
			return err
		}
	}
	return nil
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("entries", len(s.GetAll())).Info("scheduler started")
}

// Stop halts the ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Add creates a new cron job.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	cmd, err := config.ParseScheduleCommand(command)
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", command, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(cmd) })
	if err != nil {
		return 0, fmt.Errorf("schedule spec %q: %w", spec, err)
	}
	s.store[id] = config.ScheduleEntry{Spec: spec, Command: command}
	s.log.WithFields(logrus.Fields{"id": id, "spec": spec, "command": command}).Info("added schedule")
	return id, nil
}

// GetAll returns the registered schedules ordered by ID.
func (s *Scheduler) GetAll() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.store))
	for id, e := range s.store {
		cmd, _ := config.ParseScheduleCommand(e.Command)
		out = append(out, Entry{ID: id, Spec: e.Spec, Command: cmd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) execute(cmd core.Command) {
	if !s.dispatcher.Dispatch(cmd) {
		s.log.WithField("command", cmd.Type).Warn("command queue full, dropping scheduled command")
		return
	}
	s.log.WithFields(logrus.Fields{"command": cmd.Type, "color": cmd.Color}).Debug("scheduled command dispatched")
}
