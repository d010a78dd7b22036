// Command resourced is a small HTTP/WebSocket gateway over a registry
// of LocalizedResource operands: POST /resources creates one, POST
// /resources/{id}/events dispatches an event against it, and GET
// /resources/{id}/stream observes its committed transitions over a
// websocket connection.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/arclabs/resourcefsm/internal/corelog"
	"github.com/arclabs/resourcefsm/pkg/config"
	"github.com/arclabs/resourcefsm/pkg/dispatch"
	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
	"github.com/arclabs/resourcefsm/pkg/telemetry"
	"github.com/valyala/fasthttp"
)

func main() {
	configPath := flag.String("config", "", "path to the gateway's YAML config file")
	adminToken := flag.String("admin-token", "", "plaintext admin token, hashed in memory at startup")
	flag.Parse()

	logger := corelog.NewDefaultLogger()

	cfg := DefaultConfig()
	if *configPath != "" {
		if err := config.LoadWithEnv(*configPath, "RESOURCED", &cfg); err != nil {
			logger.Errorf("resourced: load config: %v", err)
			os.Exit(1)
		}
	}

	if *adminToken != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*adminToken), bcrypt.DefaultCost)
		if err != nil {
			logger.Errorf("resourced: hash admin token: %v", err)
			os.Exit(1)
		}
		// The plaintext token is discarded from this point on; only the
		// hash is ever held in process memory.
		*adminToken = ""
		logger.Infof("resourced: admin token hash registered (%d bytes)", len(hashed))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("resourced: build registry: %v", err)
		os.Exit(1)
	}
	if registry.natsConn != nil {
		defer registry.natsConn.Close()
	}

	gateway := &Gateway{
		registry:  registry.registry,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		issuer:    cfg.Auth.Issuer,
		logger:    logger,
	}

	httpServer := &fasthttp.Server{
		Handler:      gateway.Handle,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	streamServer := NewStreamServer(registry.hub, registry.registry, logger)
	wsServer := &http.Server{
		Addr:    cfg.WebSocket.Addr,
		Handler: streamServer,
	}

	if registry.sink != nil {
		go func() {
			if err := registry.sink.Run(ctx); err != nil && err != context.Canceled {
				logger.Errorf("resourced: telemetry sink stopped: %v", err)
			}
		}()
	}

	go func() {
		logger.Infof("resourced: REST gateway listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(cfg.HTTP.Addr); err != nil {
			logger.Errorf("resourced: fasthttp server stopped: %v", err)
		}
	}()

	go func() {
		logger.Infof("resourced: stream gateway listening on %s", cfg.WebSocket.Addr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("resourced: websocket server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("resourced: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("resourced: fasthttp shutdown: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("resourced: websocket shutdown: %v", err)
	}
	logger.Infof("resourced: shut down gracefully")
}

// wiredRegistry bundles the resource registry together with the
// collaborators built alongside it, so main can start/stop them without
// reaching back into package-level globals.
type wiredRegistry struct {
	registry *Registry
	hub      *StreamHub
	sink     *telemetry.Sink
	natsConn *nats.Conn
}

func buildRegistry(ctx context.Context, cfg Config, logger corelog.Logger) (*wiredRegistry, error) {
	promRegistry := prometheus.NewRegistry()
	promListener := telemetry.NewPromListener(promRegistry)

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	traceListener := telemetry.NewTraceListener(tracerProvider.Tracer("resourcefsm/resourced"))

	hub := NewStreamHub()

	multi := fsm.NewMultiListener[*resource.LocalizedResource, resource.State, resource.EventKind, resource.Event](
		promListener, traceListener, hub,
	)

	topology, err := resource.NewTopology(resource.WithListener(multi))
	if err != nil {
		return nil, err
	}

	// A connected NATS dispatcher gives every created resource its own
	// subscription, so events published to its subject from outside the
	// gateway's own HTTP path still reach it. The URL is optional: an
	// empty one leaves the registry dispatcher-less and the REST API
	// still works as the only way to drive a resource.
	var natsConn *nats.Conn
	var dispatcher *dispatch.NatsDispatcher
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		dispatcher = dispatch.NewNatsDispatcher(natsConn)
	}

	reg := NewRegistry(ctx, topology, dispatcher, logger, resource.WithRejectionObserver(promListener))

	var sink *telemetry.Sink
	if cfg.Telemetry.SnapshotDB != "" {
		db, err := sql.Open("sqlite3", cfg.Telemetry.SnapshotDB)
		if err != nil {
			return nil, err
		}
		sink, err = telemetry.NewSink(db, promRegistry, cfg.Telemetry.SnapshotInterval)
		if err != nil {
			return nil, err
		}
	}

	return &wiredRegistry{registry: reg, hub: hub, sink: sink, natsConn: natsConn}, nil
}
