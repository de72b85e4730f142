// Command simulate is a fleet telemetry generator: it drives synthetic
// trucks along Indian logistics corridors, publishing camera.frames and
// iot.telemetry onto the Bus so the whole processor pipeline runs
// end to end without any real edge hardware.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/config"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/tripstore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// waypoint is one (lat, lon, name) stop along a corridor.
type waypoint struct {
	lat, lon float64
	name     string
}

// corridor is one simulated route along an Indian logistics lane.
type corridor struct {
	name      string
	cargo     string
	riskBase  float64
	waypoints []waypoint
}

var corridors = []corridor{
	{
		name: "Delhi-Jaipur", cargo: "Electronics", riskBase: 0.25,
		waypoints: []waypoint{
			{28.6139, 77.2090, "Delhi Depot"},
			{28.4089, 76.9944, "Gurgaon Checkpoint"},
			{27.9104, 76.5834, "Narnaul"},
			{26.9124, 75.7873, "Jaipur Warehouse"},
		},
	},
	{
		name: "Mumbai-Pune", cargo: "Pharmaceuticals", riskBase: 0.20,
		waypoints: []waypoint{
			{19.0760, 72.8777, "Mumbai Freight Terminal"},
			{18.8735, 73.3200, "Khalapur"},
			{18.5204, 73.8567, "Pune Distribution Centre"},
		},
	},
	{
		name: "Bangalore-Chennai", cargo: "Mobile Phones", riskBase: 0.30,
		waypoints: []waypoint{
			{12.9716, 77.5946, "Bangalore Export Hub"},
			{12.4500, 78.2500, "Krishnagiri"},
			{13.0827, 80.2707, "Chennai Port"},
		},
	},
}

// event is the kind of tick a simulated truck injects; weights skew
// heavily toward uneventful transit.
type event string

const (
	eventNormal     event = "normal"
	eventSlowdown   event = "slowdown"
	eventDoorOpen   event = "door_open"
	eventPersonNear event = "person_near"
	eventDeviation  event = "deviation"
)

var eventWeights = map[event]int{
	eventNormal:     65,
	eventSlowdown:   15,
	eventDoorOpen:   8,
	eventPersonNear: 7,
	eventDeviation:  5,
}

// simulatedTruck tracks one truck's progress through its corridor and the
// telemetry it emits each tick.
type simulatedTruck struct {
	truckID  string
	tripID   string
	corridor corridor

	waypointIdx int
	progress    float64
	speedKmh    float64
	doorState   models.DoorState
	rfidScanned bool
	cargoWeight float64
	signalStr   float64
	personCount int

	currentEvent event
	eventStreak  int
	frameID      uint64
	rng          *rand.Rand
}

func newSimulatedTruck(truckID, tripID string, c corridor, seed int64) *simulatedTruck {
	rng := rand.New(rand.NewSource(seed))
	return &simulatedTruck{
		truckID:      truckID,
		tripID:       tripID,
		corridor:     c,
		speedKmh:     55 + rng.Float64()*20,
		doorState:    models.DoorClosed,
		rfidScanned:  true,
		cargoWeight:  1800 + rng.Float64()*400,
		signalStr:    0.7 + rng.Float64()*0.3,
		currentEvent: eventNormal,
		rng:          rng,
	}
}

func (t *simulatedTruck) currentPos() (lat, lon float64) {
	wps := t.corridor.waypoints
	if t.waypointIdx >= len(wps)-1 {
		last := wps[len(wps)-1]
		return last.lat, last.lon
	}
	a, b := wps[t.waypointIdx], wps[t.waypointIdx+1]
	return a.lat + (b.lat-a.lat)*t.progress, a.lon + (b.lon-a.lon)*t.progress
}

func (t *simulatedTruck) pickEvent() {
	if t.eventStreak > 0 {
		t.eventStreak--
		return
	}
	weights := make(map[event]int, len(eventWeights))
	for e, w := range eventWeights {
		weights[e] = w
	}
	if t.corridor.riskBase > 0.27 {
		weights[eventDoorOpen] += 5
		weights[eventPersonNear] += 4
	}
	total := 0
	for _, w := range weights {
		total += w
	}
	pick := t.rng.Intn(total)
	for _, e := range []event{eventNormal, eventSlowdown, eventDoorOpen, eventPersonNear, eventDeviation} {
		pick -= weights[e]
		if pick < 0 {
			t.currentEvent = e
			break
		}
	}
	t.eventStreak = 1 + t.rng.Intn(3)
}

// tick advances the truck by intervalSec and applies the active event's
// telemetry profile.
func (t *simulatedTruck) tick(intervalSec float64) {
	wps := t.corridor.waypoints
	if t.waypointIdx < len(wps)-1 {
		stepM := (t.speedKmh * 1000 / 3600) * intervalSec
		a, b := wps[t.waypointIdx], wps[t.waypointIdx+1]
		segM := haversineMeters(a.lat, a.lon, b.lat, b.lon)
		if segM < 1 {
			segM = 1
		}
		t.progress += stepM / segM
		if t.progress >= 1.0 {
			t.progress = 0
			t.waypointIdx++
		}
	}

	t.pickEvent()
	switch t.currentEvent {
	case eventNormal:
		t.speedKmh = 55 + t.rng.Float64()*20
		t.doorState = models.DoorClosed
		t.rfidScanned = true
		t.signalStr = 0.7 + t.rng.Float64()*0.3
		t.personCount = 0
	case eventSlowdown:
		t.speedKmh = 5 + t.rng.Float64()*15
		t.doorState = models.DoorClosed
		t.rfidScanned = true
		t.personCount = 0
	case eventDoorOpen:
		t.speedKmh = t.rng.Float64() * 5
		t.doorState = models.DoorOpen
		t.rfidScanned = false
		t.signalStr = 0.1 + t.rng.Float64()*0.3
		t.personCount = 1 + t.rng.Intn(2)
	case eventPersonNear:
		t.speedKmh = t.rng.Float64() * 10
		if t.rng.Intn(2) == 0 {
			t.doorState = models.DoorOpen
		} else {
			t.doorState = models.DoorClosed
		}
		t.rfidScanned = false
		t.personCount = 1 + t.rng.Intn(3)
	case eventDeviation:
		t.speedKmh = 30 + t.rng.Float64()*20
		t.doorState = models.DoorClosed
		t.rfidScanned = true
		t.personCount = 0
	}

	t.cargoWeight += (t.rng.Float64()*30 - 15)
	if t.cargoWeight < 500 {
		t.cargoWeight = 500
	}
	if t.cargoWeight > 3000 {
		t.cargoWeight = 3000
	}
	t.frameID++
}

func (t *simulatedTruck) done() bool {
	return t.waypointIdx >= len(t.corridor.waypoints)-1
}

func (t *simulatedTruck) telemetry() models.IoTTelemetry {
	lat, lon := t.currentPos()
	return models.IoTTelemetry{
		TruckID:        t.truckID,
		Timestamp:      time.Now(),
		GPS:            models.GPS{Lat: lat, Lon: lon},
		DoorState:      t.doorState,
		CargoWeightKg:  t.cargoWeight,
		EngineOn:       t.speedKmh > 2,
		DriverRFIDSeen: t.rfidScanned,
		SignalStrength: clamp01(t.signalStr),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// syntheticFrame builds a tiny dark JPEG standing in for a cargo-bay camera
// frame, decodable by the perception path.
func syntheticFrame(rng *rand.Rand) []byte {
	const w, h = 160, 120
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := uint8(20 + rng.Intn(60))
			if y > h/3 && y < 2*h/3 && x > w/4 && x < 3*w/4 {
				base += 30
			}
			img.Set(x, y, color.RGBA{R: base, G: base, B: base, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50})
	return buf.Bytes()
}

// frameInput mirrors internal/perception.FrameInput's wire shape; the
// simulator has no reason to import internal/perception just for this one
// struct, so it encodes the same JSON tags directly.
type frameInput struct {
	TruckID    string    `json:"truck_id"`
	FrameID    uint64    `json:"frame_id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageBytes []byte    `json:"image_bytes"`
}

func main() {
	numTrucks := flag.Int("trucks", 3, "number of simulated trucks")
	intervalSec := flag.Float64("interval", 5, "seconds between ticks")
	once := flag.Bool("once", false, "run a single tick per truck then exit")
	flag.Parse()

	cfg := config.Get()

	var runBus bus.Bus
	if cfg.Bus.PubSubProjectID != "" {
		b, err := bus.NewPubSubBus(cfg.Bus.PubSubProjectID)
		if err != nil {
			slog.Warn("simulate: pubsub unavailable, publishing in-process only", "error", err)
			runBus = bus.NewInProcessBus()
		} else {
			runBus = b
		}
	} else {
		runBus = bus.NewInProcessBus()
	}
	defer runBus.Close()

	trips := tripstore.NewStubTripStore()

	trucks := make([]*simulatedTruck, 0, *numTrucks)
	for i := 0; i < *numTrucks; i++ {
		c := corridors[i%len(corridors)]
		truckID := corridorTruckID(c, i)
		tripID := corridorTripID(c, i)
		trips.Seed(tripstore.Trip{TripID: tripID, TruckID: truckID, Status: "active"})
		trucks = append(trucks, newSimulatedTruck(truckID, tripID, c, time.Now().UnixNano()+int64(i)))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(time.Duration(*intervalSec * float64(time.Second)))
	defer ticker.Stop()

	slog.Info("simulate: fleet simulator starting", "trucks", len(trucks), "interval_sec", *intervalSec)

	publishTick(runBus, trucks, *intervalSec)
	if *once {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulate: stopping")
			return
		case <-ticker.C:
			publishTick(runBus, trucks, *intervalSec)
			trucks = dropCompleted(trucks)
			if len(trucks) == 0 {
				slog.Info("simulate: all trips complete")
				return
			}
		}
	}
}

func publishTick(b bus.Bus, trucks []*simulatedTruck, intervalSec float64) {
	for _, t := range trucks {
		if t.done() {
			continue
		}
		t.tick(intervalSec)

		if raw, err := json.Marshal(t.telemetry()); err == nil {
			b.Publish("iot.telemetry", raw)
		} else {
			slog.Warn("simulate: encode telemetry failed", "truck_id", t.truckID, "error", err)
		}

		frame := frameInput{
			TruckID:    t.truckID,
			FrameID:    t.frameID,
			Timestamp:  time.Now(),
			ImageBytes: syntheticFrame(t.rng),
		}
		if raw, err := json.Marshal(frame); err == nil {
			b.Publish("camera.frames", raw)
		} else {
			slog.Warn("simulate: encode frame failed", "truck_id", t.truckID, "error", err)
		}
	}
}

func dropCompleted(trucks []*simulatedTruck) []*simulatedTruck {
	out := trucks[:0]
	for _, t := range trucks {
		if !t.done() {
			out = append(out, t)
		}
	}
	return out
}

func corridorTruckID(c corridor, i int) string {
	return "TRUCK-" + c.name + "-" + strconv.Itoa(i)
}

func corridorTripID(c corridor, i int) string {
	return "TRIP-" + c.name + "-" + strconv.Itoa(i)
}
