package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWorker writes an executable stand-in for the cracking binary. The
// script extracts its private potfile path from the supervisor-supplied
// --potfile-path flag, like the real worker would.
func writeWorker(t *testing.T, dir, body string) string {
	t.Helper()
	script := "#!/bin/sh\n" +
		"pot=\"\"\n" +
		"prev=\"\"\n" +
		"for a in \"$@\"; do\n" +
		"  if [ \"$prev\" = \"--potfile-path\" ]; then pot=\"$a\"; fi\n" +
		"  prev=\"$a\"\n" +
		"done\n" +
		body
	path := filepath.Join(dir, "fake-worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func testOptions(t *testing.T, binary string, poll time.Duration) (Options, *events.Bus, *potfile.Shared) {
	t.Helper()
	dir := t.TempDir()

	shared, err := potfile.NewShared(filepath.Join(dir, "potfile.txt"))
	require.NoError(t, err)

	bus := events.NewBus()
	return Options{
		Binary:      binary,
		SessionsDir: dir,
		StatusTimer: 1,
		PotfilePoll: poll,
		Shared:      shared,
		Bus:         bus,
	}, bus, shared
}

func waitDone(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

// drain collects everything published for the session so far
func drain(ch <-chan models.Event) []models.Event {
	var collected []models.Event
	for {
		select {
		case ev := <-ch:
			collected = append(collected, ev)
		default:
			return collected
		}
	}
}

func TestSession_FullLifecycle(t *testing.T) {
	dir := t.TempDir()
	worker := writeWorker(t, dir,
		"echo 'Status...........: Running'\n"+
			"echo 'Speed.#1.........:   500.0 MH/s'\n"+
			"echo '5f4dcc3b5aa765d61d8327deb882cf99:password' >> \"$pot\"\n"+
			"sleep 1\n"+
			"echo 'Status...........: Exhausted'\n")

	opts, bus, shared := testOptions(t, worker, 100*time.Millisecond)
	ch := bus.Subscribe("observer")
	defer bus.Unsubscribe("observer")

	sess, err := Launch(Config{Name: "lifecycle", CustomArgs: []string{"run"}}, opts)
	require.NoError(t, err)

	waitDone(t, sess)
	collected := drain(ch)
	require.NotEmpty(t, collected)

	// The finished event is the last event published for the session
	last := collected[len(collected)-1]
	assert.Equal(t, models.EventSessionFinished, last.Type)

	finished := last.Payload.(models.FinishedPayload)
	assert.Equal(t, 1, finished.Recovered)
	assert.Equal(t, 500e6, finished.AvgHashrate)
	assert.Greater(t, finished.Duration, 0.0)

	var started, crackCount int
	for _, ev := range collected {
		switch ev.Type {
		case models.EventSessionStarted:
			started++
		case models.EventSessionCrack:
			crackCount++
			payload := ev.Payload.(models.CrackPayload)
			assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", payload.Hash)
			assert.Equal(t, "password", payload.Plain)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, crackCount, "the discovered entry is announced exactly once")

	// The entry was propagated into the shared potfile exactly once
	lines, err := shared.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"5f4dcc3b5aa765d61d8327deb882cf99:password"}, lines)

	// Worker reported Exhausted, which reads as completed
	assert.Equal(t, models.SessionStatusCompleted, sess.Status())

	// The shadow potfile is removed after finalization
	_, err = os.Stat(filepath.Join(opts.SessionsDir, sess.ID+".potfile"))
	assert.True(t, os.IsNotExist(err))
}

func TestSession_ZeroSamplesAverageIsZero(t *testing.T) {
	dir := t.TempDir()
	worker := writeWorker(t, dir, "exit 0\n")

	opts, bus, _ := testOptions(t, worker, 100*time.Millisecond)
	ch := bus.Subscribe("observer")
	defer bus.Unsubscribe("observer")

	sess, err := Launch(Config{CustomArgs: []string{"run"}}, opts)
	require.NoError(t, err)
	waitDone(t, sess)

	collected := drain(ch)
	require.NotEmpty(t, collected)
	finished := collected[len(collected)-1].Payload.(models.FinishedPayload)
	assert.Equal(t, 0.0, finished.AvgHashrate)
	assert.Equal(t, 0.0, finished.AvgPower)
}

func TestSession_StopStillReportsPendingResults(t *testing.T) {
	dir := t.TempDir()
	// exec keeps the worker a single process so the stop signal reaches it
	worker := writeWorker(t, dir,
		"echo 'aabbcc:secret' >> \"$pot\"\n"+
			"exec sleep 30\n")

	// Polling far slower than the test: only the pre-finish reconcile can
	// pick the entry up
	opts, bus, shared := testOptions(t, worker, time.Hour)
	ch := bus.Subscribe("observer")
	defer bus.Unsubscribe("observer")

	sess, err := Launch(Config{CustomArgs: []string{"run"}}, opts)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, sess.Stop())
	waitDone(t, sess)

	collected := drain(ch)
	finished := collected[len(collected)-1].Payload.(models.FinishedPayload)
	assert.Equal(t, 1, finished.Recovered)
	assert.Equal(t, models.SessionStatusStopped, sess.Status())

	lines, err := shared.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"aabbcc:secret"}, lines)
}

func TestSession_SpawnFailureLeavesNothingBehind(t *testing.T) {
	opts, _, _ := testOptions(t, "/nonexistent/worker", 100*time.Millisecond)

	_, err := Launch(Config{Name: "ghost", CustomArgs: []string{"run"}}, opts)
	require.Error(t, err)

	// No shadow potfile survives a spawn failure
	entries, readErr := os.ReadDir(opts.SessionsDir)
	require.NoError(t, readErr)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".potfile")
	}
}

func TestSession_DualRecordingAggregatesDeviceSpeeds(t *testing.T) {
	s := &Session{opts: Options{Bus: events.NewBus()}}
	s.st.deviceSpeed = make(map[int]float64)

	s.handleLine("Speed.#1.........:   500.0 MH/s")
	s.handleLine("Speed.#2.........:   500.0 MH/s")
	s.handleLine("Progress.........: 10/100 (10.00%)")

	// The first numbered device was the only one reporting at the time and
	// counted as the aggregate; the progress line then snapshotted the sum
	// of both named devices.
	assert.Equal(t, 2, s.st.speedSamples)
	assert.Equal(t, 500e6+1e9, s.st.speedSum)

	speed, ok := s.bestAggregateLocked()
	require.True(t, ok)
	assert.Equal(t, 1e9, speed, "no wildcard reading: aggregate is the device sum")
}

func TestSession_WildcardReadingWins(t *testing.T) {
	s := &Session{opts: Options{Bus: events.NewBus()}}
	s.st.deviceSpeed = make(map[int]float64)

	s.handleLine("Speed.#1.........:   500.0 MH/s")
	s.handleLine("Speed.#*.........:   800.0 MH/s")

	speed, ok := s.bestAggregateLocked()
	require.True(t, ok)
	assert.Equal(t, 800e6, speed)
}

func TestSession_ProgressWithoutSpeedAddsNoSample(t *testing.T) {
	s := &Session{opts: Options{Bus: events.NewBus()}}
	s.st.deviceSpeed = make(map[int]float64)

	s.handleLine("Progress.........: 10/100 (10.00%)")
	assert.Equal(t, 0, s.st.speedSamples)
}

func TestSession_RecoveredCountsFromStatusLines(t *testing.T) {
	s := &Session{opts: Options{Bus: events.NewBus()}}
	s.st.deviceSpeed = make(map[int]float64)

	s.handleLine("Recovered........: 3/10 (30.00%) Digests")
	assert.Equal(t, 3, s.st.recovered)
	assert.Equal(t, 10, s.st.total)

	// Counts never regress when the worker repeats an older figure
	s.handleLine("Recovered........: 2/10 (20.00%) Digests")
	assert.Equal(t, 3, s.st.recovered)
}

func TestFindLatestRestore(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "old-session.restore"), []byte("x"), 0644))
	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old-session.restore"), older, older))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new-session.restore"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-checkpoint.txt"), []byte("x"), 0644))

	id, err := FindLatestRestore(dir)
	require.NoError(t, err)
	assert.Equal(t, "new-session", id)
}

func TestFindLatestRestore_NoCheckpoint(t *testing.T) {
	_, err := FindLatestRestore(t.TempDir())
	assert.Error(t, err)
}
