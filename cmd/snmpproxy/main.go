// Command snmpproxy runs the SNMPv2c caching proxy: one UDP listener that
// rewrites the community-carried routing token, forwards to the resolved
// backend, and caches replies for the configured TTL.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bkochergin/snmpproxy/internal/api"
	"github.com/bkochergin/snmpproxy/internal/applog"
	"github.com/bkochergin/snmpproxy/internal/backend"
	"github.com/bkochergin/snmpproxy/internal/backendmap"
	"github.com/bkochergin/snmpproxy/internal/proxy"
)

func main() {
	port := flag.Int("port", backend.Port, "UDP port to listen on")
	listenAddr := flag.String("listen", "0.0.0.0", "listen address")
	backendCommunity := flag.String("backend-community", "public", "community string sent to backends")
	backendTimeoutSec := flag.Int("backend-timeout-sec", 2, "per-attempt backend timeout, in seconds")
	numBackendRetries := flag.Int("num-backend-retries", 2, "additional backend attempts after the first")
	cacheTTLSec := flag.Int("cache-ttl-sec", 300, "cache entry TTL and sweeper period, in seconds")
	httpAddr := flag.String("http-addr", "", "operator HTTP surface address (empty disables it)")
	backendMapPath := flag.String("backend-map", "", "path to an optional backend routing YAML file")
	logFormat := flag.String("log-format", "text", "log output format: text or json")
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(1)
		}
		os.Exit(2)
	}

	applog.Configure(*logFormat)

	var router *backendmap.Router
	if *backendMapPath != "" {
		r, err := backendmap.LoadFromFile(*backendMapPath)
		if err != nil {
			log.Fatalf("load backend map: %v", err)
		}
		router = r
		log.Printf("loaded backend map from %s", *backendMapPath)
	}

	srv, err := proxy.New(proxy.Config{
		ListenAddr:        *listenAddr,
		Port:              *port,
		BackendCommunity:  *backendCommunity,
		BackendTimeout:    time.Duration(*backendTimeoutSec) * time.Second,
		NumBackendRetries: *numBackendRetries,
		CacheTTL:          time.Duration(*cacheTTLSec) * time.Second,
		Router:            router,
	})
	if err != nil {
		log.Fatalf("build proxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		log.Printf("bind failed: %v", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if *httpAddr != "" {
		apiServer = api.NewServer(*httpAddr, *port, srv)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("operator http surface error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received signal %v, shutting down", sig)

	cancel()
	srv.Stop()
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			log.Printf("operator http surface shutdown error: %v", err)
		}
	}
	log.Printf("shutdown complete")
}
