package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashdeck/hashdeck/internal/archive"
	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/internal/parser"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// Options wires a session into the rest of the process
type Options struct {
	Binary      string
	SessionsDir string
	StatusTimer int
	PotfilePoll time.Duration
	Shared      *potfile.Shared
	Bus         *events.Bus
	Archive     *archive.Store // optional
	OnExit      func(*Session) // registry eviction, runs after the finished event
}

// stats is the running accumulator for one session. All access goes
// through the session mutex.
type stats struct {
	recovered int
	total     int

	speedSum     float64
	speedSamples int

	deviceSpeed   map[int]float64
	wildcardSpeed float64
	wildcardSeen  bool

	powerSum     float64
	powerSamples int
}

// Session owns one worker process end to end: its argv, its output stream,
// its shadow potfile and its accumulated statistics. Nothing outside the
// session mutates its stats; the hardware poller contributes power samples
// through AddPowerSample only.
type Session struct {
	ID        string
	Name      string
	Config    Config
	StartedAt time.Time

	opts       Options
	cmd        *exec.Cmd
	shadowPath string
	tracker    *potfile.Tracker

	mu            sync.Mutex
	status        models.SessionStatus
	parsedFinal   models.SessionStatus
	stopRequested bool
	st            stats

	reconcileMu sync.Mutex

	readerDone chan struct{}
	stopPoll   chan struct{}
	done       chan struct{}
}

// Launch validates the config, materializes the shadow potfile, spawns the
// worker and starts supervision. A spawn failure leaves nothing behind: no
// session, no shadow file, no events beyond the error returned here.
func Launch(cfg Config, opts Options) (*Session, error) {
	id := cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	name := cfg.Name
	if name == "" {
		name = id
	}

	shadowPath := filepath.Join(opts.SessionsDir, id+".potfile")

	// A restore reuses its previous shadow when it survived; everything
	// else starts from a fresh copy of the shared potfile.
	if _, err := os.Stat(shadowPath); err != nil || !cfg.Restore {
		if err := opts.Shared.CopyTo(shadowPath); err != nil {
			return nil, fmt.Errorf("failed to materialize shadow potfile: %w", err)
		}
	}

	args, err := buildArgs(cfg, id, shadowPath, opts.StatusTimer)
	if err != nil {
		os.Remove(shadowPath)
		return nil, err
	}

	binary := opts.Binary
	if cfg.BinaryPath != "" {
		binary = cfg.BinaryPath
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = opts.SessionsDir
	cmd.Env = os.Environ()

	// Both output streams share one pipe: status lines may appear on
	// either, and a single reader preserves their order.
	pr, pw, err := os.Pipe()
	if err != nil {
		os.Remove(shadowPath)
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	debug.Info("Launching worker for session %s: %s %v", id, binary, args)

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		os.Remove(shadowPath)
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}
	// The child holds its own copy of the write end
	pw.Close()

	s := &Session{
		ID:         id,
		Name:       name,
		Config:     cfg,
		StartedAt:  time.Now(),
		opts:       opts,
		cmd:        cmd,
		shadowPath: shadowPath,
		tracker:    potfile.NewTracker(shadowPath),
		status:     models.SessionStatusRunning,
		readerDone: make(chan struct{}),
		stopPoll:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.st.deviceSpeed = make(map[int]float64)

	opts.Bus.Publish(models.NewEvent(models.EventSessionStarted, id, models.StartedPayload{
		ID:     id,
		Name:   name,
		Target: s.Target(),
	}))
	opts.Bus.Publish(models.NewEvent(models.EventSessionStatus, id, models.StatusPayload{
		Status: models.SessionStatusRunning,
	}))

	go s.readOutput(pr)
	go s.pollPotfile()
	go s.supervise()

	return s, nil
}

// Target names what the session is cracking, for observer displays
func (s *Session) Target() string {
	if s.Config.HashFile != "" {
		return s.Config.HashFile
	}
	if len(s.Config.CustomArgs) > 0 {
		return "custom"
	}
	return "restore"
}

// Status returns the current session status
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// View returns the observer-facing summary
func (s *Session) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionView{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.status,
		Target:    s.Target(),
		StartedAt: s.StartedAt,
		Recovered: s.st.recovered,
		Total:     s.st.total,
	}
}

// Done is closed after the finished event has been published and the
// session fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop sends the worker a termination signal. It never waits and performs
// no bookkeeping: completion accounting happens exclusively in the exit
// handler, so a process already on its way down is not double-counted.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()

	if s.cmd.Process == nil {
		return fmt.Errorf("worker process not running")
	}
	debug.Info("Sending SIGTERM to session %s worker", s.ID)
	return s.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill forcibly terminates the worker, used when a client discards the
// session outright.
func (s *Session) Kill() error {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()

	if s.cmd.Process == nil {
		return fmt.Errorf("worker process not running")
	}
	return s.cmd.Process.Kill()
}

// AddPowerSample attributes a shared hardware power reading to this session
func (s *Session) AddPowerSample(watts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return
	}
	s.st.powerSum += watts
	s.st.powerSamples++
}

// readOutput streams the worker's combined output through the line buffer
// and classifier. Runs until the pipe reaches EOF at process exit.
func (s *Session) readOutput(pr *os.File) {
	defer close(s.readerDone)
	defer pr.Close()

	var lb parser.LineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				s.handleLine(line)
			}
		}
		if err != nil {
			if line, ok := lb.Flush(); ok {
				s.handleLine(line)
			}
			return
		}
	}
}

// handleLine classifies one output line, folds the resulting events into
// the session's statistics, and republishes them on the bus in parse order.
func (s *Session) handleLine(line string) {
	for _, ev := range parser.Classify(s.ID, line) {
		s.applyEvent(&ev)
		s.opts.Bus.Publish(ev)
	}
}

// applyEvent updates session state from a parsed event. Hashrate events may
// be reclassified as the aggregate here: a numbered device counts as the
// aggregate when it is the only device reporting.
func (s *Session) applyEvent(ev *models.Event) {
	switch ev.Type {
	case models.EventSessionStatus:
		payload := ev.Payload.(models.StatusPayload)
		s.mu.Lock()
		if payload.Status.IsTerminal() {
			// Remember the worker's own terminal verdict for finalization;
			// the session itself stays live until the process exits.
			s.parsedFinal = payload.Status
		} else if !s.status.IsTerminal() {
			s.status = payload.Status
		}
		s.mu.Unlock()

	case models.EventStatsUpdate:
		payload := ev.Payload.(models.StatsPayload)
		switch payload.Kind {
		case models.StatHashrate:
			s.mu.Lock()
			if payload.Device == parser.WildcardDevice {
				s.st.wildcardSpeed = payload.Value
				s.st.wildcardSeen = true
			} else {
				s.st.deviceSpeed[payload.Device] = payload.Value
				payload.IsAggregate = !s.st.wildcardSeen && len(s.st.deviceSpeed) == 1
			}
			if payload.IsAggregate {
				s.st.speedSum += payload.Value
				s.st.speedSamples++
			}
			s.mu.Unlock()
			ev.Payload = payload

		case models.StatProgress:
			// The worker reports aggregate speed and progress on separate
			// lines; snapshotting the best-known aggregate here keeps the
			// running sum at comparable sample density.
			s.mu.Lock()
			if speed, ok := s.bestAggregateLocked(); ok {
				s.st.speedSum += speed
				s.st.speedSamples++
			}
			s.mu.Unlock()

		case models.StatRecovered:
			s.mu.Lock()
			if n := int(payload.Value); n > s.st.recovered {
				s.st.recovered = n
			}
			s.mu.Unlock()

		case models.StatTotal:
			s.mu.Lock()
			s.st.total = int(payload.Value)
			s.mu.Unlock()
		}
	}
}

// bestAggregateLocked returns the current best-known aggregate speed: the
// wildcard reading when present, else the sum of all named devices.
func (s *Session) bestAggregateLocked() (float64, bool) {
	if s.st.wildcardSeen {
		return s.st.wildcardSpeed, true
	}
	if len(s.st.deviceSpeed) > 0 {
		var sum float64
		for _, v := range s.st.deviceSpeed {
			sum += v
		}
		return sum, true
	}
	return 0, false
}

// pollPotfile checks the shadow potfile for growth on a fixed interval.
// Polling trades a little latency for reliable cross-platform growth
// detection; filesystem watches can miss rapid appends on some platforms.
func (s *Session) pollPotfile() {
	ticker := time.NewTicker(s.opts.PotfilePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile()
		case <-s.stopPoll:
			return
		}
	}
}

// reconcile propagates newly appended shadow potfile entries: one crack
// event and one shared potfile line per entry, exactly once. Read failures
// skip the cycle and are retried on the next tick.
func (s *Session) reconcile() {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	entries, err := s.tracker.Reconcile()
	if err != nil {
		debug.Warning("Session %s potfile poll failed: %v", s.ID, err)
		s.opts.Bus.Publish(models.NewEvent(models.EventLog, s.ID, models.LogPayload{
			Level:   "warning",
			Message: fmt.Sprintf("potfile poll failed: %v", err),
		}))
		return
	}

	for _, entry := range entries {
		s.opts.Bus.Publish(models.NewEvent(models.EventSessionCrack, s.ID, models.CrackPayload{
			Hash:  entry.Hash,
			Plain: entry.Plain,
		}))

		if err := s.opts.Shared.AppendLine(entry.Raw); err != nil {
			debug.Error("Session %s failed to propagate potfile entry: %v", s.ID, err)
			s.opts.Bus.Publish(models.NewEvent(models.EventLog, s.ID, models.LogPayload{
				Level:   "error",
				Message: fmt.Sprintf("failed to propagate potfile entry: %v", err),
			}))
		}

		s.mu.Lock()
		s.st.recovered++
		s.mu.Unlock()
	}
}

// supervise waits for process exit, drains the output reader, and runs the
// single finalization path. Any exit code lands here; only spawn failure
// (handled in Launch) bypasses it.
func (s *Session) supervise() {
	waitErr := s.cmd.Wait()
	<-s.readerDone
	close(s.stopPoll)
	s.finalize(waitErr)
}

// finalize computes the terminal aggregates, publishes the terminal status
// and the finished event (always the session's last event), removes the
// shadow potfile and evicts the session.
func (s *Session) finalize(waitErr error) {
	// Results appended just before exit must still be reported: reconcile
	// at least once after the process is gone.
	s.reconcile()

	duration := time.Since(s.StartedAt)

	s.mu.Lock()
	var avgHashrate float64
	if s.st.speedSamples > 0 {
		avgHashrate = s.st.speedSum / float64(s.st.speedSamples)
	}
	var avgPower float64
	if s.st.powerSamples > 0 {
		avgPower = s.st.powerSum / float64(s.st.powerSamples)
	}

	final := models.SessionStatusCompleted
	switch {
	case s.stopRequested:
		final = models.SessionStatusStopped
	case s.parsedFinal != "":
		final = s.parsedFinal
	case waitErr != nil:
		final = models.SessionStatusError
	}
	s.status = final
	recovered := s.st.recovered
	total := s.st.total
	s.mu.Unlock()

	if waitErr != nil {
		debug.Warning("Session %s worker exited with error: %v", s.ID, waitErr)
		s.opts.Bus.Publish(models.NewEvent(models.EventLog, s.ID, models.LogPayload{
			Level:   "warning",
			Message: fmt.Sprintf("worker exited with error: %v", waitErr),
		}))
	}

	debug.Info("Session %s finished: status=%s duration=%v recovered=%d/%d avg=%.0f H/s",
		s.ID, final, duration.Round(time.Millisecond), recovered, total, avgHashrate)

	s.opts.Bus.Publish(models.NewEvent(models.EventSessionStatus, s.ID, models.StatusPayload{
		Status: final,
	}))
	s.opts.Bus.Publish(models.NewEvent(models.EventSessionFinished, s.ID, models.FinishedPayload{
		Duration:    duration.Seconds(),
		Recovered:   recovered,
		Total:       total,
		AvgHashrate: avgHashrate,
		AvgPower:    avgPower,
	}))

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Record(archive.Summary{
			ID:          s.ID,
			Name:        s.Name,
			StartedAt:   s.StartedAt,
			Duration:    duration.Seconds(),
			Recovered:   recovered,
			Total:       total,
			AvgHashrate: avgHashrate,
			AvgPower:    avgPower,
			Status:      final,
		}); err != nil {
			debug.Error("Failed to archive session %s: %v", s.ID, err)
		}
	}

	if err := os.Remove(s.shadowPath); err != nil && !os.IsNotExist(err) {
		debug.Warning("Failed to remove shadow potfile for session %s: %v", s.ID, err)
	}

	if s.opts.OnExit != nil {
		s.opts.OnExit(s)
	}
	close(s.done)
}
