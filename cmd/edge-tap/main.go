// Command edge-tap runs on a depot edge gateway and captures IoT telemetry
// traffic at the socket layer with eBPF, republishing decoded samples onto
// the iot.telemetry bus topic. It exists for sites where the telemetry
// collector cannot be modified to publish directly: the tap observes the
// UDP stream the trucks already send and feeds the pipeline from the side.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/config"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// TelemetryEvent matches the C struct in telemetry_tap.bpf.c.
type TelemetryEvent struct {
	Timestamp  uint64
	SrcIP      uint32
	DstIP      uint32
	SrcPort    uint16
	DstPort    uint16
	PayloadLen uint32
	Payload    [2048]byte
}

// Stats counters mirror the eBPF-side stats map slots.
type Stats struct {
	TotalPackets    uint64
	FilteredPackets uint64
	CapturedPackets uint64
	DroppedPackets  uint64
}

func main() {
	slog.Info("RAKSHAK edge-tap — kernel-level telemetry capture")

	cfg := config.Get()
	b := buildBus(cfg)
	defer b.Close()

	// Allow the process to lock memory for eBPF resources.
	if err := rlimit.RemoveMemlock(); err != nil {
		log.Fatalf("Failed to remove memlock: %v", err)
	}

	objPath := os.Getenv("EDGE_TAP_BPF_OBJECT")
	if objPath == "" {
		objPath = "telemetry_tap.bpf.o"
	}
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		log.Fatalf("Failed to load eBPF spec from %s: %v", objPath, err)
	}

	var objs struct {
		TelemetryFilter *ebpf.Program `ebpf:"telemetry_filter"`
		Events          *ebpf.Map     `ebpf:"events"`
		PortConfig      *ebpf.Map     `ebpf:"telemetry_port_config"`
		Stats           *ebpf.Map     `ebpf:"stats"`
	}

	if err := spec.LoadAndAssign(&objs, nil); err != nil {
		log.Fatalf("Failed to load eBPF objects: %v", err)
	}
	defer objs.TelemetryFilter.Close()
	defer objs.Events.Close()
	defer objs.PortConfig.Close()
	defer objs.Stats.Close()

	// Configure the UDP port the trucks' IoT units send telemetry on.
	telemetryPort := uint16(5055)
	if v := os.Getenv("EDGE_TAP_TELEMETRY_PORT"); v != "" {
		if parsed, perr := strconv.Atoi(v); perr == nil && parsed > 0 && parsed < 65536 {
			telemetryPort = uint16(parsed)
		}
	}
	configKey := uint32(0)
	if err := objs.PortConfig.Put(configKey, telemetryPort); err != nil {
		log.Fatalf("Failed to configure telemetry port: %v", err)
	}
	slog.Info("edge-tap: intercepting telemetry traffic", "port", telemetryPort)

	iface := os.Getenv("EDGE_TAP_INTERFACE")
	if iface == "" {
		iface = "eth0"
	}

	l, err := link.AttachRawLink(link.RawLinkOptions{
		Program: objs.TelemetryFilter,
		Target:  0,
		Attach:  ebpf.AttachSkSKBStreamParser,
	})
	if err != nil {
		// Filter attachment needs root and specific kernel support; the
		// ring buffer path still works if another loader attached it.
		slog.Warn("edge-tap: failed to attach socket filter, continuing without", "iface", iface, "error", err)
	} else {
		defer l.Close()
		slog.Info("edge-tap: socket filter attached", "iface", iface)
	}

	rd, err := ringbuf.NewReader(objs.Events)
	if err != nil {
		log.Fatalf("Failed to open ring buffer: %v", err)
	}
	defer rd.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go reportStats(objs.Stats)

	slog.Info("edge-tap: waiting for telemetry packets")
	for {
		select {
		case <-sig:
			slog.Info("edge-tap: shutting down")
			return
		default:
			record, err := rd.Read()
			if err != nil {
				if err == ringbuf.ErrClosed {
					slog.Info("edge-tap: ring buffer closed")
					return
				}
				slog.Warn("edge-tap: ring buffer read error", "error", err)
				continue
			}

			var event TelemetryEvent
			if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &event); err != nil {
				slog.Warn("edge-tap: failed to parse event", "error", err)
				continue
			}

			publishTelemetry(b, &event)
		}
	}
}

// publishTelemetry decodes one captured packet and republishes it on
// iot.telemetry. Packets that are not valid telemetry JSON are dropped
// with a log, matching the bus-side ValidationError policy.
func publishTelemetry(b bus.Bus, event *TelemetryEvent) {
	payloadLen := event.PayloadLen
	if payloadLen > uint32(len(event.Payload)) {
		slog.Warn("edge-tap: payload length exceeds buffer, clamping", "payload_len", payloadLen)
		payloadLen = uint32(len(event.Payload))
	}
	payload := event.Payload[:payloadLen]

	var sample models.IoTTelemetry
	if err := json.Unmarshal(payload, &sample); err != nil {
		slog.Warn("edge-tap: dropping non-telemetry packet",
			"src", ipToString(event.SrcIP), "src_port", event.SrcPort, "error", err)
		return
	}
	if sample.TruckID == "" {
		slog.Warn("edge-tap: dropping telemetry without truck id", "src", ipToString(event.SrcIP))
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Unix(0, int64(event.Timestamp))
	}

	encoded, err := json.Marshal(sample)
	if err != nil {
		slog.Warn("edge-tap: failed to re-encode telemetry", "error", err)
		return
	}
	b.Publish("iot.telemetry", encoded)
}

func reportStats(statsMap *ebpf.Map) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var stats Stats

		key := uint32(0) // STAT_TOTAL_PACKETS
		if err := statsMap.Lookup(key, &stats.TotalPackets); err == nil {
			key = 1 // STAT_FILTERED_PACKETS
			statsMap.Lookup(key, &stats.FilteredPackets)
			key = 2 // STAT_CAPTURED_PACKETS
			statsMap.Lookup(key, &stats.CapturedPackets)
			key = 3 // STAT_DROPPED_PACKETS
			statsMap.Lookup(key, &stats.DroppedPackets)

			slog.Info("edge-tap stats",
				"total", stats.TotalPackets,
				"filtered", stats.FilteredPackets,
				"captured", stats.CapturedPackets,
				"dropped", stats.DroppedPackets)
		}
	}
}

// buildBus mirrors cmd/coordinator's selection: Pub/Sub when configured,
// in-process otherwise. A standalone tap without Pub/Sub has no remote
// subscribers — useful only for dry runs, so say so.
func buildBus(cfg *config.Config) bus.Bus {
	if cfg.Bus.PubSubProjectID != "" {
		b, err := bus.NewPubSubBus(cfg.Bus.PubSubProjectID)
		if err != nil {
			slog.Warn("edge-tap: pubsub unavailable, falling back to in-process bus", "error", err)
		} else {
			slog.Info("edge-tap: publishing to Cloud Pub/Sub", "project", cfg.Bus.PubSubProjectID)
			return b
		}
	}
	slog.Warn("edge-tap: no Pub/Sub project configured — captured telemetry stays in-process (dry run)")
	return bus.NewInProcessBus()
}

// ipToString converts an IPv4 address kept in network byte order and read
// as a little-endian uint32 (so the first octet is the least-significant
// byte) to dotted notation.
func ipToString(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(ip), byte(ip>>8), byte(ip>>16), byte(ip>>24))
}
