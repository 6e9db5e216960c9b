package main

import (
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/mirage-layer0/internal/config"
	"github.com/ocx/mirage-layer0/internal/layer0"
	"github.com/ocx/mirage-layer0/internal/metrics"
	"github.com/ocx/mirage-layer0/internal/noise"
	"github.com/ocx/mirage-layer0/internal/protocol"
)

func main() {
	slog.Info("Mirage Layer 0 - inline deception front end")

	cfg := config.Get()
	orc := layer0.NewOrchestrator(layer0.ConfigFromSettings(cfg))
	m := metrics.NewMetrics()
	noiseDetector := noise.NewDetector()

	go func() {
		idle := time.Duration(cfg.RateStats.CleanupAfterIdleSec) * time.Second
		for range time.Tick(time.Minute) {
			if n := orc.CleanupInactiveSources(idle); n > 0 {
				slog.Debug("reaped idle sources", "count", n)
			}
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Default().Println("metrics listening on :9090/metrics")
		log.Fatal(http.ListenAndServe(":9090", mux))
	}()

	ln, err := net.Listen("tcp", ":2222")
	if err != nil {
		slog.Error("failed to bind listener", "error", err)
		return
	}
	defer ln.Close()
	slog.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Warn("accept failed", "error", err)
			continue
		}
		go handleConn(conn, orc, m, noiseDetector)
	}
}

func handleConn(conn net.Conn, orc *layer0.Orchestrator, m *metrics.Metrics, noiseDetector *noise.Detector) {
	correlationID := uuid.New().String()
	defer conn.Close()

	sourceIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return
	}
	payload := buf[:n]

	start := time.Now()
	out := orc.Process(sourceIP, payload)
	duration := time.Since(start)
	m.Observe(out, duration.Seconds())
	m.SetBreakerState(orc.BreakerStateName())

	slog.Info("processed connection",
		"correlation_id", correlationID,
		"source_ip", sourceIP,
		"proto", out.ProtoGuess.String(),
		"lane", out.ResponseProfile.String(),
		"tags", out.Tags.String(),
		"escalate", out.Escalate,
		"score", out.SuspicionScore,
	)

	if out.Escalate {
		// Lane 3: no Layer-0 reply is authoritative. A production
		// deployment would hand the connection to the upstream
		// cognitive layer here; the demo just closes it.
		return
	}

	reply := replyFor(out, payload, noiseDetector)
	if out.ResponseProfile == layer0.SlowFake {
		time.Sleep(150 * time.Millisecond)
	}
	_, _ = conn.Write(reply)
}

func replyFor(out layer0.Layer0Output, payload []byte, noiseDetector *noise.Detector) []byte {
	if m, ok := noiseDetector.Match(payload); ok {
		return []byte(noise.HintReply(m))
	}
	return protocol.BoringFailureResponse(out.ProtoGuess)
}
