package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gridmesh-network/gridmesh/internal/api"
	"github.com/gridmesh-network/gridmesh/internal/app/compute"
	"github.com/gridmesh-network/gridmesh/internal/app/payment"
	"github.com/gridmesh-network/gridmesh/internal/app/reputation"
	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/health"
	"github.com/gridmesh-network/gridmesh/internal/infra/delivery"
	_ "github.com/gridmesh-network/gridmesh/internal/infra/metrics" // Register Prometheus metrics
	"github.com/gridmesh-network/gridmesh/internal/infra/network"
	"github.com/gridmesh-network/gridmesh/internal/infra/registry"
	"github.com/gridmesh-network/gridmesh/internal/infra/session"
	"github.com/gridmesh-network/gridmesh/internal/infra/sqlite"
	"github.com/gridmesh-network/gridmesh/internal/infra/trust"
)

// Version is the node software version advertised to peers.
const Version = "0.1.0"

// Daemon is the core GridMesh runtime. It wires together all services.
type Daemon struct {
	Config      Config
	NodeID      string
	DB          *sqlite.DB
	Registry    *registry.Registry
	Trust       *trust.Ledger
	Results     *delivery.Queue
	Coordinator *session.Coordinator
	Scheduler   *compute.Scheduler
	Payments    *payment.Service
	Reputation  *reputation.Store
	Health      *health.Checker
	Server      *api.Server

	listener *network.Listener
	syncEach time.Duration
	cancel   context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	// Open SQLite
	db, err := sqlite.Open(gridmeshHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Node identity: configured id, persisted id, or a fresh one.
	nodeID, err := loadNodeID(db, cfg.Node.ID)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Local compute side: capability filter, scheduler feedback, trust
	// modifiers.
	sched := compute.NewScheduler(compute.Config{
		Environments:         cfg.Market.Environments,
		Version:              Version,
		DefaultTrustModifier: cfg.Trust.DefaultModifier,
	})

	// Persistent collaborators
	rep := reputation.NewStore(reputation.Config{
		StartScore: cfg.Trust.Start,
		MinScore:   cfg.Trust.Min,
		MaxScore:   cfg.Trust.Max,
	}, db)
	pay := payment.NewService(payment.Config{
		PriceModifier:  cfg.Payment.PriceModifier,
		SettleDeadline: parseDuration(cfg.Payment.SettleDeadline, 10*time.Minute),
	}, db)

	// Marketplace core
	reg := registry.New(registry.Config{
		CooldownWindow: parseDuration(cfg.Market.CooldownWindow, 240*time.Second),
	}, sched)
	ledger := trust.NewLedger(trust.Config{
		MinTrust: cfg.Trust.Min,
		MaxTrust: cfg.Trust.Max,
	}, rep, sched)
	results := delivery.NewQueue(delivery.Config{
		MaxResendDelay: parseDuration(cfg.Market.MaxResendDelay, 30*time.Second),
	})

	dialer := network.NewDialer(network.DefaultConfig())

	coord := session.NewCoordinator(session.Config{
		NodeID:               nodeID,
		ListenAddress:        cfg.Node.ListenAddress,
		ListenPort:           cfg.Node.ListenPort,
		EstimatedPerformance: cfg.Market.EstimatedPerformance,
		MaxResourceSize:      cfg.Market.MaxResourceSize,
		MaxMemorySize:        cfg.Market.MaxMemorySize,
		NumCores:             cfg.Market.NumCores,
	}, reg, ledger, results, dialer, pay, sched)

	// Health checker
	checker := health.NewChecker(db, gridmeshHome(), results, cfg.Market.MaxResultBacklog)

	// API server
	srv := api.NewServer(nodeID, Version, coord, reg, results, pay, rep, checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	d := &Daemon{
		Config:      cfg,
		NodeID:      nodeID,
		DB:          db,
		Registry:    reg,
		Trust:       ledger,
		Results:     results,
		Coordinator: coord,
		Scheduler:   sched,
		Payments:    pay,
		Reputation:  rep,
		Health:      checker,
		Server:      srv,
		syncEach:    parseDuration(cfg.Market.SyncInterval, 10*time.Second),
	}
	d.listener = network.NewListener(network.DefaultConfig(), &protocolHandler{coord: coord})
	return d, nil
}

// loadNodeID resolves the node identity: explicit config wins, then the
// persisted id, then a freshly generated one that is persisted for next
// start.
func loadNodeID(db *sqlite.DB, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	stored, err := db.GetNodeInfo("node_id")
	if err != nil {
		return "", fmt.Errorf("load node id: %w", err)
	}
	if stored != "" {
		return stored, nil
	}
	id := "node-" + uuid.NewString()
	if err := db.SetNodeInfo("node_id", id); err != nil {
		return "", fmt.Errorf("persist node id: %w", err)
	}
	return id, nil
}

// protocolHandler routes inbound peer messages into the coordinator.
type protocolHandler struct {
	coord *session.Coordinator
}

func (p *protocolHandler) HandleTaskHeader(h domain.TaskHeader) error {
	p.coord.OnTaskHeaderReceived(h)
	return nil
}

func (p *protocolHandler) HandleVerification(taskID string, accepted bool, rewardOrReason string) error {
	return p.coord.OnVerificationResult(taskID, accepted, rewardOrReason)
}

// Serve starts the node and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	// Peer protocol listener
	go func() {
		addr := fmt.Sprintf("%s:%d", d.Config.Node.ListenAddress, d.Config.Node.ListenPort)
		if err := d.listener.Serve(ctx, addr); err != nil {
			log.Printf("[daemon] peer listener: %v", err)
		}
	}()

	// Marketplace sync loop: header expiry, result flushing, payment
	// deadline sweep. Expiry runs before flushing within one tick.
	go d.syncLoop(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("GridMesh node %s serving on http://%s\n", d.NodeID, addr)
	fmt.Printf("  Peer protocol: %s:%d\n", d.Config.Node.ListenAddress, d.Config.Node.ListenPort)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// syncLoop runs the periodic marketplace tick.
func (d *Daemon) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(d.syncEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.Coordinator.Sync(ctx, now)
			d.Payments.SweepDeadlines(now)
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
