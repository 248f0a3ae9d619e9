package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ampiolux/lcs-gateway/internal/manager"
	"github.com/ampiolux/lcs-gateway/internal/metrics"
	"github.com/ampiolux/lcs-gateway/internal/push"
	"github.com/ampiolux/lcs-gateway/internal/restapi"
	"github.com/ampiolux/lcs-gateway/internal/wspush"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("lcs-gateway %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	policy := push.PolicyDrop
	if cfg.pushPolicy == "kick" {
		policy = push.PolicyKick
	}
	hub := push.New()
	hub.OutBufSize = cfg.pushBuffer
	hub.Policy = policy

	m := manager.New(manager.WithPushHub(hub), manager.WithRequestTimeout(cfg.requestTimeout))

	if cfg.agentsFile != "" {
		if err := loadAgentsFile(cfg.agentsFile, m); err != nil {
			l.Error("agents_file_error", "error", err)
			return
		}
	}
	if cfg.defaultAgentID != "" {
		if err := m.AddAgent(cfg.defaultAgentID, cfg.defaultAgentHost, cfg.defaultAgentPort, ""); err != nil {
			l.Error("default_agent_error", "error", err)
			return
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/lcs/", restapi.NewRouter(m))
	mux.Handle("/ws", wspush.NewHandler(hub))

	httpSrv := &http.Server{Addr: cfg.listenAddr, Handler: mux}
	go func() {
		l.Info("http_listen", "addr", cfg.listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	if cfg.mdnsEnable {
		_, port, err := netSplitPort(cfg.listenAddr)
		if err != nil {
			l.Warn("mdns_port_parse_failed", "error", err)
		} else {
			cleanupMDNS, err := startMDNS(ctx, cfg, port)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
			} else {
				l.Info("mdns_started", "service", mdnsServiceType, "port", port)
				defer cleanupMDNS()
			}
		}
	}

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	m.DisconnectAll()
	wg.Wait()
}
