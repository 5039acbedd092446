/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ravenna-audio/ravennad/config"
	"github.com/ravenna-audio/ravennad/dnssd"
	"github.com/ravenna-audio/ravennad/node"
	"github.com/ravenna-audio/ravennad/ptp/clock"
	"github.com/ravenna-audio/ravennad/ptp/protocol"
)

var (
	serveConfigPath      string
	serveListenAddr      string
	serveMonitoringPort  int
	serveRTPPort         int
	servePayloadType     int
	serveMockDiscovery   bool
	serveClockIdentity   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run a RAVENNA node, advertising the session described by --config",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the node's JSON configuration file (required)")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", ":5540", "host:port the RTSP control server binds to")
	serveCmd.Flags().IntVar(&serveMonitoringPort, "monitoring-port", 8889, "port to serve Prometheus metrics on")
	serveCmd.Flags().IntVar(&serveRTPPort, "rtp-port", 5004, "RTP port the advertised session sends on")
	serveCmd.Flags().IntVar(&servePayloadType, "payload-type", 98, "RTP dynamic payload type for the advertised session")
	serveCmd.Flags().BoolVar(&serveMockDiscovery, "mock-dnssd", false, "use an in-memory DNS-SD backend instead of mDNS, for local testing")
	serveCmd.Flags().StringVar(&serveClockIdentity, "clock-identity", "", "hex PTP clock identity for this node; random-ish default derived from the process if empty")
	_ = serveCmd.MarkFlagRequired("config")
	RootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	f, err := os.Open(serveConfigPath)
	if err != nil {
		return fmt.Errorf("opening config %s: %w", serveConfigPath, err)
	}
	defer f.Close()

	cfg, err := config.Load(f)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()
	clk := clock.New(nil, reg)

	browser, advertiser, err := discoveryBackend()
	if err != nil {
		return fmt.Errorf("starting dns-sd backend: %w", err)
	}

	n := node.New(clk, browser, advertiser, clockIdentity())

	if err := n.RTSPServer.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("registering rtsp server metrics: %w", err)
	}
	if err := n.RTSPClient.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("registering rtsp client metrics: %w", err)
	}

	ln, err := net.Listen("tcp", serveListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", serveListenAddr, err)
	}
	log.Infof("ravennad: RTSP control plane listening on %s", ln.Addr())

	n.Run(ln)

	if err := n.StartPTP(cfg.PrimaryInterface, cfg.ClockDomain); err != nil {
		n.Stop()
		return fmt.Errorf("starting ptp: %w", err)
	}
	log.Infof("ravennad: ptp synchronizing on %s, domain %d", cfg.PrimaryInterface, cfg.ClockDomain)

	if cfg.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := n.AddSession(ctx, cfg, uint16(serveRTPPort), uint8(servePayloadType))
		cancel()
		if err != nil {
			n.Stop()
			return fmt.Errorf("advertising session %s: %w", cfg.SessionName, err)
		}
		log.Infof("ravennad: advertising session %q on %s:%d", cfg.SessionName, cfg.DestinationAddress, serveRTPPort)
	}

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
		log.Warnf("ravennad: monitoring server exiting: %v",
			http.ListenAndServe(fmt.Sprintf(":%d", serveMonitoringPort), nil))
	}()

	go watchReloadSignal(n, serveConfigPath)

	waitForShutdown(n)
	return nil
}

// watchReloadSignal mirrors ptp4u's SIGHUP-triggered reload (c4u.go sends
// ptp4u a SIGHUP whenever its own config file changes): on SIGHUP here,
// re-read and diff the node's config file against the config behind its
// currently running session. Changing a running session's audio format or
// destination isn't supported without a restart, so a reload only confirms
// the file still matches; it's the hook a future config-watcher would drive
// AddSession/RemoveSession from.
func watchReloadSignal(n *node.Node, path string) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	for range sighup {
		f, err := os.Open(path)
		if err != nil {
			log.Warnf("ravennad: reload: opening %s: %v", path, err)
			continue
		}
		cfg, err := config.Load(f)
		f.Close()
		if err != nil {
			log.Warnf("ravennad: reload: parsing %s: %v", path, err)
			continue
		}

		active := n.ActiveConfig()
		switch {
		case active == nil:
			log.Infof("ravennad: reload: no session running yet, nothing to compare %s against", path)
		case active.SessionName != cfg.SessionName, active.DestinationAddress != cfg.DestinationAddress:
			log.Warnf("ravennad: reload: %s changed session identity/destination; restart ravennad to apply", path)
		default:
			log.Infof("ravennad: reload: %s re-read, session %q configuration unchanged", path, cfg.SessionName)
		}
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM/SIGQUIT, then stops the node
// gracefully — the same signal-driven shutdown shape as the teacher's
// standalone daemons.
func waitForShutdown(n *node.Node) {
	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	<-sigStop
	log.Warning("ravennad: shutting down")
	n.Stop()
}

func discoveryBackend() (dnssd.Browser, dnssd.Advertiser, error) {
	if serveMockDiscovery {
		log.Warn("ravennad: using mock DNS-SD backend, nothing is actually advertised or discovered over the network")
		return dnssd.NewMockBrowser(), dnssd.NewMockAdvertiser(), nil
	}
	browser, err := dnssd.NewZeroconfBrowser()
	if err != nil {
		return nil, nil, err
	}
	return browser, dnssd.NewZeroconfAdvertiser(), nil
}

func clockIdentity() protocol.ClockIdentity {
	if serveClockIdentity == "" {
		return protocol.ClockIdentity(uint64(os.Getpid()))
	}
	var id uint64
	if _, err := fmt.Sscanf(serveClockIdentity, "%x", &id); err != nil {
		log.Fatalf("ravennad: malformed --clock-identity %q: %v", serveClockIdentity, err)
	}
	return protocol.ClockIdentity(id)
}
