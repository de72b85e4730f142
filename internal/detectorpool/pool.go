// Package detectorpool pre-warms detector sidecar containers so Perception
// never waits on a cold model load. Lifecycle: Pre-warm -> Acquire ->
// Release, with a background maintainer topping the pool back up.
package detectorpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// detectorGRPCPort is the port the detector image serves gRPC on.
const detectorGRPCPort = 50051

// DetectorContainer is one running detector sidecar.
type DetectorContainer struct {
	ID        string
	IPAddress string
	LastUsed  time.Time
}

// Endpoint is the gRPC dial target for this container.
func (c *DetectorContainer) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.IPAddress, detectorGRPCPort)
}

// PoolManager handles the lifecycle of detector containers.
type PoolManager struct {
	mu          sync.Mutex
	available   chan *DetectorContainer
	active      map[string]*DetectorContainer
	minIdle     int
	maxCapacity int
	imageName   string
	stop        chan struct{}
}

// New initializes the pool and starts pre-warming.
func New(minIdle, maxCap int, image string) *PoolManager {
	pm := &PoolManager{
		available:   make(chan *DetectorContainer, maxCap),
		active:      make(map[string]*DetectorContainer),
		minIdle:     minIdle,
		maxCapacity: maxCap,
		imageName:   image,
		stop:        make(chan struct{}),
	}
	go pm.maintainPool()
	return pm
}

// Get retrieves a pre-warmed container or blocks until one is ready.
func (pm *PoolManager) Get(ctx context.Context) (*DetectorContainer, error) {
	select {
	case c := <-pm.available:
		pm.mu.Lock()
		pm.active[c.ID] = c
		pm.mu.Unlock()

		c.LastUsed = time.Now()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a container to the pool. A detector sidecar is stateless
// between frames, so no scrub pass is needed before reuse.
func (pm *PoolManager) Put(c *DetectorContainer) {
	pm.mu.Lock()
	delete(pm.active, c.ID)
	pm.mu.Unlock()

	select {
	case pm.available <- c:
	default:
		// Pool already full; retire the surplus container.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pm.destroyContainer(ctx, c)
	}
}

// maintainPool keeps the pool populated until Close.
func (pm *PoolManager) maintainPool() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}

		pm.mu.Lock()
		activeCount := len(pm.active)
		pm.mu.Unlock()

		availableCount := len(pm.available)
		total := activeCount + availableCount

		if availableCount < pm.minIdle && total < pm.maxCapacity {
			deficit := pm.minIdle - availableCount
			for i := 0; i < deficit; i++ {
				if total+i >= pm.maxCapacity {
					break
				}
				go pm.createContainer()
			}
		}
	}
}

func (pm *PoolManager) createContainer() {
	ctx := context.Background()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Warn("detectorpool: error creating docker client", "error", err)
		return
	}
	defer cli.Close()

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: 2000000000,         // 2.0 CPU — inference is the hot loop
			Memory:   1024 * 1024 * 1024, // 1GB for model weights
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: pm.imageName,
		Tty:   false,
	}, hostConfig, nil, nil, "")
	if err != nil {
		slog.Warn("detectorpool: failed to create detector container", "error", err)
		return
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		slog.Warn("detectorpool: failed to start detector container", "error", err)
		return
	}

	inspect, err := cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		slog.Warn("detectorpool: failed to inspect detector container", "id", resp.ID, "error", err)
		return
	}

	c := &DetectorContainer{
		ID:        resp.ID,
		IPAddress: inspect.NetworkSettings.IPAddress,
		LastUsed:  time.Now(),
	}

	select {
	case pm.available <- c:
		slog.Info("detectorpool: detector container pre-warmed", "id", resp.ID[:12], "endpoint", c.Endpoint())
	default:
		pm.destroyContainer(ctx, c)
	}
}

func (pm *PoolManager) destroyContainer(ctx context.Context, c *DetectorContainer) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Warn("detectorpool: failed to create client for destroy", "error", err)
		return
	}
	defer cli.Close()

	if err := cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
		slog.Warn("detectorpool: failed to remove container", "id", c.ID, "error", err)
	}
}

// Close stops the maintainer and removes every pooled container.
func (pm *PoolManager) Close() {
	close(pm.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		select {
		case c := <-pm.available:
			pm.destroyContainer(ctx, c)
		default:
			pm.mu.Lock()
			for _, c := range pm.active {
				pm.destroyContainer(ctx, c)
			}
			pm.active = make(map[string]*DetectorContainer)
			pm.mu.Unlock()
			return
		}
	}
}

// Stats returns current pool statistics.
func (pm *PoolManager) Stats() map[string]interface{} {
	pm.mu.Lock()
	activeCount := len(pm.active)
	pm.mu.Unlock()

	return map[string]interface{}{
		"active_containers": activeCount,
		"idle_containers":   len(pm.available),
		"total_capacity":    pm.maxCapacity,
		"min_idle":          pm.minIdle,
	}
}
