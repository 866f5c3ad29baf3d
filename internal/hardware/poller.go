package hardware

import (
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/pkg/debug"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// PowerSink receives each hardware sample's total power reading so it can
// be attributed to active sessions.
type PowerSink interface {
	AttributePower(watts float64)
}

// querySMI reads GPU power draw and temperature. Swappable for tests.
var querySMI = func() ([]byte, error) {
	cmd := exec.Command("nvidia-smi",
		"--query-gpu=power.draw,temperature.gpu",
		"--format=csv,noheader,nounits")
	return cmd.Output()
}

// Poller samples shared hardware telemetry on a fixed interval,
// independent of any session, and publishes it as a global event. Sampling
// failures are skipped per cycle and never fatal: a host without the
// vendor tooling simply produces no GPU readings.
type Poller struct {
	interval time.Duration
	bus      *events.Bus
	sink     PowerSink
	stop     chan struct{}
}

// NewPoller creates a hardware poller publishing to bus and attributing
// power samples to sink.
func NewPoller(interval time.Duration, bus *events.Bus, sink PowerSink) *Poller {
	return &Poller{
		interval: interval,
		bus:      bus,
		sink:     sink,
		stop:     make(chan struct{}),
	}
}

// Start begins periodic sampling
func (p *Poller) Start() {
	debug.Info("Starting hardware polling with interval %v", p.interval)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sample()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop ends sampling
func (p *Poller) Stop() {
	close(p.stop)
}

// sample collects one reading and publishes it. GPU power is attributed
// equally to every active session at sample time.
func (p *Poller) sample() {
	payload := models.HardwarePayload{}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		payload.CPUPercent = percentages[0]
	} else if err != nil {
		debug.Debug("CPU sampling failed: %v", err)
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		payload.MemPercent = vmem.UsedPercent
	} else {
		debug.Debug("Memory sampling failed: %v", err)
	}

	power, maxTemp, ok := sampleGPUs()
	if ok {
		payload.PowerWatts = power
		payload.MaxTempC = maxTemp
		if p.sink != nil && power > 0 {
			p.sink.AttributePower(power)
		}
	}

	p.bus.Publish(models.NewEvent(models.EventHardware, "", payload))
}

// sampleGPUs sums power draw and takes the peak temperature across GPUs
func sampleGPUs() (power float64, maxTemp float64, ok bool) {
	output, err := querySMI()
	if err != nil {
		debug.Debug("GPU sampling unavailable: %v", err)
		return 0, 0, false
	}

	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		if w, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err == nil {
			power += w
			ok = true
		}
		if t, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err == nil && t > maxTemp {
			maxTemp = t
		}
	}
	return power, maxTemp, ok
}
