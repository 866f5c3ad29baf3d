package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// WildcardDevice tags the aggregate Speed.#* reading
const WildcardDevice = -1

// LineBuffer reassembles complete lines from arbitrarily chunked worker
// output. A trailing incomplete fragment is held until the next chunk;
// lines are never surfaced until their terminator has arrived.
type LineBuffer struct {
	residual []byte
}

// Feed appends a chunk and returns every newly completed line, trimmed,
// in the exact order the worker emitted them.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.residual = append(b.residual, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.residual, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(b.residual[:idx]))
		b.residual = b.residual[idx+1:]
		lines = append(lines, line)
	}
	return lines
}

// Flush returns the trailing fragment, if any, as a final line. Used once
// at stream end, where EOF terminates the last line.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.residual) == 0 {
		return "", false
	}
	line := strings.TrimSpace(string(b.residual))
	b.residual = nil
	if line == "" {
		return "", false
	}
	return line, true
}

// rule pairs a status-line pattern with its event constructor. Rules are
// evaluated in order and every matching rule fires; classification is
// additive, not first-match.
type rule struct {
	re    *regexp.Regexp
	apply func(sessionID string, m []string) []models.Event
}

var (
	statusRe    = regexp.MustCompile(`^Status\.+:\s*(\S+)`)
	speedRe     = regexp.MustCompile(`^Speed\.#(\*|\d+)\.+:\s*([0-9.]+)\s*([kKMG]?)H/s`)
	progressRe  = regexp.MustCompile(`^Progress\.+:\s*(\d+)/(\d+)\s*\(([0-9.]+)%\)`)
	estimatedRe = regexp.MustCompile(`^Time\.Estimated\.+:\s*(.+)$`)
	recoveredRe = regexp.MustCompile(`^Recovered\.+:\s*(\d+)/(\d+)`)
	parenRe     = regexp.MustCompile(`\(([^)]+)\)`)
)

// statusWords maps hashcat run-state words onto session statuses. The
// exhausted and cracked terminals both read as completed.
var statusWords = map[string]models.SessionStatus{
	"Running":   models.SessionStatusRunning,
	"Paused":    models.SessionStatusPaused,
	"Exhausted": models.SessionStatusCompleted,
	"Cracked":   models.SessionStatusCompleted,
	"Quit":      models.SessionStatusStopped,
	"Aborted":   models.SessionStatusStopped,
}

var unitMultipliers = map[string]float64{
	"":  1,
	"k": 1e3,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
}

var rules = []rule{
	{statusRe, applyStatus},
	{speedRe, applySpeed},
	{progressRe, applyProgress},
	{estimatedRe, applyEstimated},
	{recoveredRe, applyRecovered},
}

func applyStatus(sessionID string, m []string) []models.Event {
	status, ok := statusWords[m[1]]
	if !ok {
		debug.Debug("Unrecognized status word: %s", m[1])
		return nil
	}
	return []models.Event{models.NewEvent(models.EventSessionStatus, sessionID, models.StatusPayload{
		Status: status,
	})}
}

func applySpeed(sessionID string, m []string) []models.Event {
	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil
	}

	device := WildcardDevice
	if m[1] != "*" {
		device, err = strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
	}

	return []models.Event{models.NewEvent(models.EventStatsUpdate, sessionID, models.StatsPayload{
		Kind:        models.StatHashrate,
		Value:       value * unitMultipliers[m[3]],
		Device:      device,
		IsAggregate: device == WildcardDevice,
	})}
}

func applyProgress(sessionID string, m []string) []models.Event {
	percent, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil
	}
	return []models.Event{models.NewEvent(models.EventStatsUpdate, sessionID, models.StatsPayload{
		Kind:  models.StatProgress,
		Value: percent,
	})}
}

func applyEstimated(sessionID string, m []string) []models.Event {
	eta := strings.TrimSpace(m[1])
	// Prefer the parenthesized human duration when present,
	// e.g. "Thu Jan 1 00:01:40 1970 (1 min, 40 secs)"
	if paren := parenRe.FindStringSubmatch(eta); paren != nil {
		eta = strings.TrimSpace(paren[1])
	}
	if eta == "" {
		return nil
	}
	return []models.Event{models.NewEvent(models.EventStatsUpdate, sessionID, models.StatsPayload{
		Kind: models.StatETA,
		Text: eta,
	})}
}

func applyRecovered(sessionID string, m []string) []models.Event {
	recovered, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	total, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return []models.Event{
		models.NewEvent(models.EventStatsUpdate, sessionID, models.StatsPayload{
			Kind:  models.StatRecovered,
			Value: float64(recovered),
		}),
		models.NewEvent(models.EventStatsUpdate, sessionID, models.StatsPayload{
			Kind:  models.StatTotal,
			Value: float64(total),
		}),
	}
}

// Classify converts a complete worker output line into telemetry events.
// All matching rules fire; the verbatim line is always surfaced as a
// trailing log event regardless of classification. A line matching no
// rule, or one with malformed numeric fields, yields only the log event.
func Classify(sessionID, line string) []models.Event {
	var result []models.Event
	for _, r := range rules {
		if m := r.re.FindStringSubmatch(line); m != nil {
			result = append(result, r.apply(sessionID, m)...)
		}
	}

	result = append(result, models.NewEvent(models.EventLog, sessionID, models.LogPayload{
		Level:   "info",
		Message: line,
	}))
	return result
}

// ParseSpeed extracts a hashes-per-second value from a Speed line anywhere
// in output. Used for benchmark parsing, which reports a single line.
func ParseSpeed(output string) (float64, bool) {
	benchRe := regexp.MustCompile(`Speed\.#?\S*\.*:\s*([0-9.]+)\s*([kKMG]?)H/s`)
	m := benchRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value * unitMultipliers[m[2]], true
}
