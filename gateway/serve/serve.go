// Package serve wires the Tracker/Registry/Matcher/Forwarder/Audit/Admin
// stack into a running gateway node: parsed configuration in, a set of
// goroutines serving listeners out, a ready flag flipped once startup
// finishes, and a signal-triggered graceful shutdown.
package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowgate/gateway/gateway/admin"
	"github.com/flowgate/gateway/gateway/audit"
	"github.com/flowgate/gateway/gateway/auth"
	"github.com/flowgate/gateway/gateway/config"
	"github.com/flowgate/gateway/gateway/forwarder"
	"github.com/flowgate/gateway/gateway/matcher"
	"github.com/flowgate/gateway/gateway/ratelimit"
	"github.com/flowgate/gateway/gateway/registry"
	"github.com/flowgate/gateway/gateway/tracker"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Config collects every knob a gateway node's serve command exposes.
type Config struct {
	Node       string
	ProxyAddr  string
	AdminAddr  string
	GossipAddr string

	GossipPeers []string
	SeedFile    string

	RateLimitRPS   float64
	RateLimitBurst int
	RateLimitTTL   time.Duration

	JWTSecret []byte

	KafkaHosts []string
	KafkaTopic string
}

// Run builds the gateway stack described by cfg and serves until a
// termination signal is received, then shuts every listener down
// gracefully.
func Run(cfg Config) error {
	t := tracker.New(cfg.Node)
	gossip := tracker.NewGossip(t)
	reg := registry.New(cfg.Node, t)

	if cfg.SeedFile != "" {
		seedRegistry(reg, cfg.SeedFile)
	}

	for _, peer := range cfg.GossipPeers {
		gossip.DialPeer(peer)
	}

	m := matcher.New(reg)
	limiter := ratelimit.NewTokenBucket(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitTTL)
	verifier := auth.NewJWTVerifier(func(*jwt.Token) (interface{}, error) { return cfg.JWTSecret, nil })
	sink := buildAuditSink(cfg)
	fwd := forwarder.New(m, limiter, verifier, sink)

	ready := false
	adminServer := admin.NewServer(reg, &ready)

	proxyServer := &http.Server{Addr: cfg.ProxyAddr, Handler: fwd, ReadHeaderTimeout: 15 * time.Second}
	adminHTTPServer := &http.Server{Addr: cfg.AdminAddr, Handler: adminServer, ReadHeaderTimeout: 15 * time.Second}
	gossipMux := http.NewServeMux()
	gossipMux.Handle("/gossip", gossip)
	gossipServer := &http.Server{Addr: cfg.GossipAddr, Handler: gossipMux, ReadHeaderTimeout: 15 * time.Second}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infof("serving proxy on %s", cfg.ProxyAddr)
		if err := proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("proxy server error: %s", err)
		}
	}()
	go func() {
		log.Infof("serving admin on %s", cfg.AdminAddr)
		if err := adminHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("admin server error: %s", err)
		}
	}()
	go func() {
		log.Infof("serving gossip on %s", cfg.GossipAddr)
		if err := gossipServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("gossip server error: %s", err)
		}
	}()

	ready = true
	log.Info("gateway ready")

	<-stop
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if kafkaSink, ok := sink.(*audit.KafkaSink); ok {
		kafkaSink.Close()
	}
	gossip.Close()
	proxyServer.Shutdown(shutdownCtx)
	adminHTTPServer.Shutdown(shutdownCtx)
	gossipServer.Shutdown(shutdownCtx)
	return nil
}

func seedRegistry(reg *registry.Registry, path string) {
	defs, err := config.LoadSeedFile(path)
	if err != nil {
		log.Errorf("failed to load seed file %s: %s", path, err)
		return
	}
	for _, d := range defs {
		if err := reg.AddAPI(d.ID, d.Definition); err != nil {
			log.Errorf("failed to seed api %s: %s", d.ID, err)
		}
	}
	log.Infof("seeded %d apis from %s", len(defs), path)
}

func buildAuditSink(cfg Config) audit.Sink {
	if len(cfg.KafkaHosts) == 0 {
		log.Info("audit sink disabled: no KAFKA_HOSTS configured")
		return audit.Discard{}
	}
	topic := cfg.KafkaTopic
	if topic == "" {
		topic = "gateway-audit"
	}
	sink, err := audit.NewKafkaSink(cfg.KafkaHosts, topic)
	if err != nil {
		log.Errorf("failed to build kafka audit sink, falling back to discard: %s", err)
		return audit.Discard{}
	}
	return sink
}
