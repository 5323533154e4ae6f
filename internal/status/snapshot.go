// Package status implements spec §6.4's status snapshot: the payload
// schema the supervisor's worker-aggregation loop and the `/status` UI
// both consume (per-worker send/pool stats, per-client rows, log ring),
// exposed both as JSON and as Prometheus gauges/counters.
//
// Grounded on jroosing-HydraDNS's Stats handler
// (jroosing-HydraDNS/internal/api/handlers/health.go): the same
// gopsutil-sourced process CPU/memory sampling pattern, re-scoped from a
// gin JSON endpoint to a plain struct the NATS-based supervisor channel
// (internal/supervisor) publishes on a timer.
package status

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// ClientRow is one row of the status page's client table.
type ClientRow struct {
	ID            uint64  `json:"id"`
	Remote        string  `json:"remote"`
	Service       string  `json:"service"`
	State         uint32  `json:"state"`
	BytesSent     int64   `json:"bytesSent"`
	BandwidthBps  float64 `json:"bandwidthBitsPerSec"`
	Slow          bool    `json:"slow"`
	QueueBytes    int64   `json:"queueBytes"`
	Backpressure  int64   `json:"backpressureEvents"`
	DroppedBytes  int64   `json:"droppedBytes"`
}

// Snapshot is the full per-worker payload spec §6.4 describes.
type Snapshot struct {
	WorkerPID int         `json:"workerPid"`
	Uptime    float64     `json:"uptimeSeconds"`
	Pool      buffer.Stats `json:"pool"`

	SendTotal         int64 `json:"sendTotal"`
	SendCompletions   int64 `json:"sendCompletions"`
	EAGAINCount       int64 `json:"eagainCount"`
	ENOBUFSCopied     int64 `json:"enobufsCopiedCount"`
	BatchCount        int64 `json:"batchCount"`
	TimeoutFlushCount int64 `json:"timeoutFlushCount"`

	ProcessCPUPercent float64 `json:"processCpuPercent"`
	ProcessMemMB      float64 `json:"processMemMb"`
	SystemMemUsedPct  float64 `json:"systemMemUsedPercent"`
	NumCPU            int     `json:"numCpu"`

	Clients []ClientRow `json:"clients"`
	LogRing []string    `json:"logRing"`
}

// Builder accumulates worker-wide send counters (spec §3 Worker: "total
// bytes sent, total send completions, EAGAIN and ENOBUFS counts, batch-
// send counts, timeout-flush counts") and renders a Snapshot on demand.
type Builder struct {
	WorkerPID int
	StartedAt time.Time
	Pool      *buffer.Pool
	LogRing   *RingBuffer
}

// Build samples system/process stats (spec §11.5) and folds in every
// sender's counters and every client's state into one Snapshot.
func (b *Builder) Build(senders []*zerocopy.Sender, clients []*client.Client, now time.Time) Snapshot {
	snap := Snapshot{
		WorkerPID: b.WorkerPID,
		Uptime:    now.Sub(b.StartedAt).Seconds(),
		Pool:      b.Pool.Stats(),
		NumCPU:    runtime.NumCPU(),
	}

	for _, s := range senders {
		st := s.Stats()
		snap.SendTotal += st.Sent
		snap.SendCompletions += st.Sent - st.EAGAIN
		snap.EAGAINCount += st.EAGAIN
		snap.ENOBUFSCopied += st.ENOBUFSCopied
		snap.BatchCount += st.Batches
		snap.TimeoutFlushCount += st.TimeoutFlush
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.SystemMemUsedPct = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.ProcessCPUPercent = pct[0]
	}

	snap.Clients = make([]ClientRow, 0, len(clients))
	for _, c := range clients {
		qs := c.Queue.Stats()
		snap.Clients = append(snap.Clients, ClientRow{
			ID:           c.ID,
			Remote:       c.Remote.String(),
			Service:      c.Svc.Name,
			State:        uint32(c.State()),
			BytesSent:    c.BytesSent(),
			BandwidthBps: c.BandwidthBitsPerSec(),
			Slow:         c.Slow(),
			QueueBytes:   qs.QueueBytes,
			Backpressure: qs.Backpressure,
			DroppedBytes: qs.DroppedBytes,
		})
	}

	if b.LogRing != nil {
		snap.LogRing = b.LogRing.Snapshot()
	}

	return snap
}
