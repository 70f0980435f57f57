// Command gateway runs a flowgate node: the proxy listener, the admin
// management API, and the gossip transport that keeps its registry
// convergent with its peers.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/flowgate/gateway/gateway/serve"
	"github.com/flowgate/gateway/pkg/flags"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	printVer    bool
	node        string
	proxyAddr   string
	adminAddr   string
	gossipAddr  string
	gossipPeers []string
	seedFile    string
	rateRPS     float64
	rateBurst   int
	jwtSecret   string
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "flowgate is a distributed API gateway",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags.ConfigureLogging(logLevel)
		flags.MaybePrintVersionAndExit(printVer)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start a gateway node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve.Run(serve.Config{
			Node:           node,
			ProxyAddr:      proxyAddr,
			AdminAddr:      adminAddr,
			GossipAddr:     gossipAddr,
			GossipPeers:    gossipPeers,
			SeedFile:       seedFile,
			RateLimitRPS:   rateRPS,
			RateLimitBurst: rateBurst,
			RateLimitTTL:   10 * time.Minute,
			JWTSecret:      []byte(jwtSecret),
			KafkaHosts:     kafkaHostsFromEnv(),
			KafkaTopic:     os.Getenv("KAFKA_AUDIT_TOPIC"),
		})
	},
}

func kafkaHostsFromEnv() []string {
	hosts := os.Getenv("KAFKA_HOSTS")
	if hosts == "" {
		return nil
	}
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", log.InfoLevel.String(), "log level, must be one of: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().BoolVar(&printVer, "version", false, "print version and exit")

	serveCmd.Flags().StringVar(&node, "node", envOr("NODE_NAME", "node-1"), "this node's identity in the cluster")
	serveCmd.Flags().StringVar(&proxyAddr, "proxy-addr", ":8080", "address to serve proxied traffic on")
	serveCmd.Flags().StringVar(&adminAddr, "admin-addr", ":8081", "address to serve the admin API and metrics on")
	serveCmd.Flags().StringVar(&gossipAddr, "gossip-addr", ":8082", "address to serve the inbound gossip endpoint on")
	serveCmd.Flags().StringSliceVar(&gossipPeers, "gossip-peer", nil, "gossip endpoint URL of a peer to dial (repeatable)")
	serveCmd.Flags().StringVar(&seedFile, "seed-file", "", "path to a JSON seed-route file")
	serveCmd.Flags().Float64Var(&rateRPS, "rate-limit-rps", 10, "requests per second allowed per (endpoint, source IP)")
	serveCmd.Flags().IntVar(&rateBurst, "rate-limit-burst", 20, "token bucket burst size")
	serveCmd.Flags().StringVar(&jwtSecret, "jwt-secret", envOr("JWT_SECRET", ""), "HMAC secret used to verify bearer tokens")

	rootCmd.AddCommand(serveCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
