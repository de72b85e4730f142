// Command coordinator is the RAKSHAK entrypoint: it wires the Bus, State
// Store, and every processor into a running pipeline, serves the HTTP
// Bridge, and drains cleanly on SIGTERM/SIGINT.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/behaviour"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bridge"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/config"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/decision"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/detectorpool"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/explainability"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/fusion"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/geocoder"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/identity"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/incidentarchive"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/livefeed"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/notifier"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/perception"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/route"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/summarizer"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/supervisor"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/tripstore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/twin"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pb"
)

func main() {
	cfg := config.Get()

	runBus := buildBus(cfg)
	defer runBus.Close()

	store := buildStateStore(cfg)
	trips := buildTripStore(cfg)

	perceptionProc := perception.New(buildDetector(cfg))
	behaviourProc := behaviour.New(buildScorer(cfg))
	twinProc := twin.New(store)
	routeProc := route.New(context.Background(), route.Config{
		GeometryPath:  cfg.Route.GeometryPath,
		GeometryDBURL: cfg.Route.GeometryDBURL,
	})
	fusionProc := fusion.New(store, nil, fusion.NewMetrics(), cfg.Fusion.StalenessWindow)
	archive := buildArchive(cfg)
	defer archive.Close()
	decisionProc := decision.New(store, buildNotifier(cfg), archive)
	explainProc := explainability.New(store, buildSummarizer(cfg))

	ioServer, err := livefeed.NewSocketIOServer()
	if err != nil {
		slog.Warn("livefeed: socket.io unavailable, websocket transport only", "error", err)
	}
	var emitter livefeed.Emitter
	if ioServer != nil {
		emitter = &livefeed.SocketIOEmitter{Server: ioServer}
		defer ioServer.Close()
	}
	feed := livefeed.New(emitter)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	onEscalate := func(name string) {
		slog.Error("processor escalated past restart threshold, exiting", "processor", name)
		os.Exit(1)
	}

	tasks := []*supervisor.Task{
		supervisor.Run(rootCtx, "perception", func(ctx context.Context) error { return perceptionProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "behaviour", func(ctx context.Context) error { return behaviourProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "twin", func(ctx context.Context) error { return twinProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "route", func(ctx context.Context) error { return routeProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "fusion", func(ctx context.Context) error { return fusionProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "decision", func(ctx context.Context) error { return decisionProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "explainability", func(ctx context.Context) error { return explainProc.Run(ctx, runBus) }, onEscalate),
		supervisor.Run(rootCtx, "livefeed", func(ctx context.Context) error { return feed.Run(ctx, runBus) }, onEscalate),
	}

	var edgeVerifier *identity.EdgeVerifier
	if cfg.Identity.SPIFFESocketPath != "" {
		v, err := identity.NewEdgeVerifier(cfg.Identity.SPIFFESocketPath)
		if err != nil {
			slog.Warn("identity: SPIFFE unavailable, bridge will listen plain HTTP", "error", err)
		} else {
			edgeVerifier = v
			defer edgeVerifier.Close()
		}
	}

	bridgeSrv := bridge.New(store, trips, runBus)
	bridgeSrv.Geo = geocoder.NewNullGeocoder()
	bridgeSrv.Perception = perceptionProc
	bridgeSrv.Behaviour = behaviourProc
	bridgeSrv.Twin = twinProc
	bridgeSrv.Route = routeProc
	bridgeSrv.Fusion = fusionProc
	bridgeSrv.Decision = decisionProc
	bridgeSrv.Explainability = explainProc

	router := bridgeSrv.Router()
	router.HandleFunc("/ws/events", feed.HandleWebSocket)
	if ioServer != nil {
		router.PathPrefix("/socket.io/").Handler(ioServer)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.GetPort(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}
	if edgeVerifier != nil {
		httpServer.TLSConfig = edgeVerifier.ListenerTLSConfig()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("coordinator: shutdown signal received, draining")

		rootCancel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		for _, t := range tasks {
			t.Stop(ctx)
		}

		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("coordinator: bridge shutdown error", "error", err)
		}
	}()

	slog.Info("RAKSHAK coordinator starting", "port", cfg.GetPort(), "env", cfg.Server.Env)

	if edgeVerifier != nil {
		err = httpServer.ListenAndServeTLS("", "")
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("coordinator: bridge failed: %v", err)
	}

	slog.Info("RAKSHAK coordinator stopped")
}

// buildBus selects Pub/Sub when configured, falling back to the
// always-available in-process bus on any connection failure.
func buildBus(cfg *config.Config) bus.Bus {
	if cfg.Bus.PubSubProjectID != "" {
		b, err := bus.NewPubSubBus(cfg.Bus.PubSubProjectID)
		if err != nil {
			slog.Warn("bus: pubsub unavailable, falling back to in-process bus", "error", err)
		} else {
			slog.Info("bus: publishing to Cloud Pub/Sub", "project", cfg.Bus.PubSubProjectID)
			return b
		}
	}
	return bus.NewInProcessBus()
}

// buildStateStore selects Redis when configured, falling back to the
// in-memory KV on any connection failure.
func buildStateStore(cfg *config.Config) *statestore.StateStore {
	if cfg.StateStore.RedisAddr == "" {
		return statestore.New(statestore.NewMemoryKV())
	}
	kv, err := statestore.NewRedisKV(cfg.StateStore.RedisAddr, cfg.StateStore.RedisPassword, cfg.StateStore.RedisDB)
	if err != nil {
		slog.Warn("statestore: redis unavailable, falling back to in-memory store", "addr", cfg.StateStore.RedisAddr, "error", err)
		return statestore.New(statestore.NewMemoryKV())
	}
	slog.Info("statestore: backed by redis", "addr", cfg.StateStore.RedisAddr)
	return statestore.New(kv)
}

// buildTripStore selects Supabase when its credentials are present,
// falling back to an in-memory stub seeded with a handful of demo trips.
func buildTripStore(cfg *config.Config) tripstore.TripStore {
	if cfg.TripStore.SupabaseURL != "" && cfg.TripStore.SupabaseServiceKey != "" {
		ts, err := tripstore.NewSupabaseTripStore()
		if err != nil {
			slog.Warn("tripstore: supabase unavailable, falling back to in-memory stub", "error", err)
		} else {
			slog.Info("tripstore: backed by supabase")
			return ts
		}
	}
	stub := tripstore.NewStubTripStore()
	for _, trip := range []tripstore.Trip{
		{TripID: "TRIP-001", TruckID: "TRUCK-001", Status: "active"},
		{TripID: "TRIP-002", TruckID: "TRUCK-002", Status: "active"},
		{TripID: "TRIP-003", TruckID: "TRUCK-003", Status: "active"},
	} {
		stub.Seed(trip)
	}
	return stub
}

// buildArchive selects the durable incident archive backend, degrading to
// the in-memory archive when Spanner is misconfigured or unreachable.
func buildArchive(cfg *config.Config) incidentarchive.Archive {
	archive, err := incidentarchive.New(incidentarchive.Config{
		Backend:         cfg.Archive.Backend,
		SpannerProject:  cfg.Archive.SpannerProject,
		SpannerInstance: cfg.Archive.SpannerInstance,
		SpannerDatabase: cfg.Archive.SpannerDatabase,
	})
	if err != nil {
		slog.Warn("archive: backend unavailable, falling back to in-memory archive", "backend", cfg.Archive.Backend, "error", err)
		return incidentarchive.NewMemoryArchive()
	}
	if cfg.Archive.Backend == "spanner" {
		slog.Info("archive: backed by spanner", "database", cfg.Archive.SpannerDatabase)
	}
	return archive
}

// buildDetector resolves the detector backend: an explicit gRPC
// address wins, then a pooled sidecar container, then the deterministic
// stub. Every failure falls through to the next option.
func buildDetector(cfg *config.Config) perception.Detector {
	addr := cfg.Perception.DetectorGRPCAddr

	if addr == "" && cfg.Perception.DetectorImage != "" {
		pool := detectorpool.New(cfg.Perception.DetectorPoolMin, cfg.Perception.DetectorPoolMax, cfg.Perception.DetectorImage)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c, err := pool.Get(ctx)
		if err != nil {
			slog.Warn("perception: no pooled detector container became ready, falling back to stub detector", "image", cfg.Perception.DetectorImage, "error", err)
			pool.Close()
		} else {
			addr = c.Endpoint()
			slog.Info("perception: detector backed by pooled container", "id", c.ID[:12], "addr", addr)
		}
	}

	if addr == "" {
		return perception.NewStubDetector()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		slog.Warn("perception: detector gRPC unavailable, falling back to stub detector", "addr", addr, "error", err)
		return perception.NewStubDetector()
	}
	slog.Info("perception: detector backed by gRPC", "addr", addr)
	return perception.NewGRPCDetector(pb.NewDetectorServiceClient(conn))
}

// buildScorer loads the learned behaviour model artifact, if configured;
// LoadScorer itself degrades to nil (heuristic fallback) on any failure.
func buildScorer(cfg *config.Config) behaviour.Scorer {
	path := cfg.Behaviour.ModelArtifactPath
	if path == "" {
		path = cfg.Behaviour.ModelArtifactBucket
	}
	return behaviour.LoadScorer(context.Background(), path)
}

// buildNotifier selects Cloud Tasks when configured, always constructing
// the LocalNotifier first so Cloud Tasks has a concrete in-process
// fallback for enqueue failures.
func buildNotifier(cfg *config.Config) notifier.Notifier {
	sms := notifierSMSProvider(cfg)
	smtp := notifierSMTPProvider(cfg)
	local := notifier.NewLocalNotifier(sms, smtp, cfg.Notifier.Workers)

	if cfg.Notifier.Backend != "cloudtasks" {
		return local
	}
	ct, err := notifier.NewCloudTasksNotifier(
		cfg.Notifier.CloudTasksProject,
		cfg.Notifier.CloudTasksLocation,
		cfg.Notifier.CloudTasksQueue,
		cfg.Notifier.CallbackURL,
		local,
	)
	if err != nil {
		slog.Warn("notifier: cloud tasks unavailable, falling back to local notifier", "error", err)
		return local
	}
	slog.Info("notifier: backed by cloud tasks", "queue", cfg.Notifier.CloudTasksQueue)
	return ct
}

func notifierSMSProvider(cfg *config.Config) notifier.SMSProvider {
	if cfg.Notifier.SMSProviderURL == "" {
		return notifier.NewLoggingSMSProvider()
	}
	return notifier.NewHTTPSMSProvider(cfg.Notifier.SMSProviderURL, cfg.Notifier.SMSProviderToken)
}

func notifierSMTPProvider(cfg *config.Config) notifier.SMTPProvider {
	if cfg.Notifier.SMTPHost == "" {
		return notifier.NewLoggingEmailProvider()
	}
	port := "587"
	if cfg.Notifier.SMTPPort != 0 {
		port = strconv.Itoa(cfg.Notifier.SMTPPort)
	}
	return notifier.NewSMTPEmailProvider(cfg.Notifier.SMTPHost, port, cfg.Notifier.SMTPUser, cfg.Notifier.SMTPPassword, cfg.Notifier.SMTPFrom)
}

// buildSummarizer wires the provider/fallback chain: remote or local
// wrapped in FallbackSummarizer over the always-available template.
func buildSummarizer(cfg *config.Config) summarizer.Summarizer {
	template := summarizer.NewTemplateSummarizer()

	switch cfg.Summarizer.Provider {
	case "remote":
		if cfg.Summarizer.RemoteURL == "" {
			slog.Warn("summarizer: provider=remote but no remote_url configured, using template")
			return template
		}
		remote := summarizer.NewRemoteSummarizer(cfg.Summarizer.RemoteURL, cfg.Summarizer.RemoteModelID)
		return summarizer.NewFallbackSummarizer(remote, template)
	case "local":
		return summarizer.NewFallbackSummarizer(summarizer.NewLocalSummarizer(), template)
	default:
		return template
	}
}
