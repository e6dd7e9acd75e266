// Command connmon is the single-process CLI of spec.md §6: it captures TCP
// packets (live interface or offline pcap file), classifies them into
// RTT/sequence-anomaly Observations, and writes those to stdout (and
// optionally ClickHouse). Grounded on the teacher's cmd/pcap-analyzer/main.go
// wiring sequence (load config → build components → run → shutdown).
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"connmon/internal/classifier"
	"connmon/internal/config"
	"connmon/internal/localaddr"
	"connmon/internal/model"
	"connmon/internal/query"
	"connmon/internal/runloop"
	"connmon/internal/sink"
	"connmon/pkg/capture"
)

func main() {
	var (
		iface       = flag.String("i", "", "live capture from this interface")
		readFile    = flag.String("r", "", "offline capture from this pcap file")
		extraFilter = flag.String("f", "", "extra BPF filter, ANDed with tcp")
		maxPackets  = flag.Int("c", 0, "stop after N packets (0 = no limit)")
		timeToRun   = flag.Float64("s", 0, "stop after this many capture-seconds (0 = no limit)")
		quiet       = flag.Bool("q", false, "disable summary reports")
		verbose     = flag.Bool("v", true, "summaries on (default)")
		noLocal     = flag.Bool("l", false, "disable local-host filtering")
		machine     = flag.Bool("m", false, "machine-readable output")
		quickMode   = flag.Bool("Q", false, "emit only lines with at least one RTT")
		sumInt      = flag.Float64("sumInt", 0, "summary period in seconds (default 10)")
		rtdMaxAge   = flag.Float64("rtdMaxAge", 0, "correlation-entry max age in seconds (default 10)")
		flowMaxIdle = flag.Float64("flowMaxIdle", 0, "flow idle eviction in seconds (default 300)")
		configPath  = flag.String("config", "", "path to YAML config file (ambient, overridden by the flags above)")
	)
	flag.Parse()

	if *iface == "" && *readFile == "" {
		fmt.Fprintln(os.Stderr, "connmon: exactly one of -i or -r is required")
		flag.Usage()
		os.Exit(1)
	}
	if *iface != "" && *readFile != "" {
		fmt.Fprintln(os.Stderr, "connmon: -i and -r are mutually exclusive")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("connmon: %v", err)
	}
	if *sumInt > 0 {
		cfg.Monitor.SumInterval = *sumInt
	}
	if *rtdMaxAge > 0 {
		cfg.Monitor.RtdMaxAge = *rtdMaxAge
	}
	if *flowMaxIdle > 0 {
		cfg.Monitor.FlowMaxIdle = *flowMaxIdle
	}

	live := *iface != ""

	var src capture.Source
	if live {
		src, err = capture.NewLive(*iface, *extraFilter)
	} else {
		src, err = capture.NewOffline(*readFile, *extraFilter)
	}
	if err != nil {
		log.Fatalf("connmon: %v", err)
	}
	defer src.Close()

	clsCfg := classifier.Config{Quick: *quickMode}
	if live && !*noLocal {
		if ip, err := localaddr.FirstIPv4(*iface); err != nil {
			log.Printf("connmon: local-address discovery failed, disabling local-host filtering: %v", err)
		} else {
			clsCfg.FilterLocal = true
			clsCfg.HaveLocalIP = true
			clsCfg.LocalIP = model.NewEndpoint(net.ParseIP(ip), 0)
		}
	}

	var snk sink.Sink = sink.NewText(os.Stdout, *machine, live)
	if cfg.ClickHouse.Enabled {
		chSink, err := query.NewClickHouseSink(cfg.ClickHouse, 500)
		if err != nil {
			log.Fatalf("connmon: %v", err)
		}
		defer chSink.Close()
		snk = sink.MultiSink{Sinks: []sink.Sink{snk.(*sink.Text), chSink}}
	}

	summaryOn := *verbose && !*quiet

	loop := runloop.New(src, snk, cfg.Monitor.MaxFlows, clsCfg, cfg.Monitor.RtdMaxAge, cfg.Monitor.SumInterval, runloop.Options{
		MaxPackets:  *maxPackets,
		TimeToRun:   *timeToRun,
		FlowMaxIdle: cfg.Monitor.FlowMaxIdle,
		PrintStart:  summaryOn,
		SummaryOn:   summaryOn,
	})

	if err := loop.Run(); err != nil {
		log.Fatalf("connmon: %v", err)
	}
}
