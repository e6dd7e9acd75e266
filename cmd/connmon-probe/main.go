// Command connmon-probe splits capture from classification across a NATS
// bus: "-mode pub" captures PacketRecords on an interface and publishes
// them; "-mode sub" subscribes and runs them through the same classifier
// and sinks cmd/connmon uses. Grounded on the teacher's cmd/ns-probe/main.go
// mode dispatch, re-keyed onto connmon's capture/classifier/sink packages
// and config-driven NATS settings instead of hardcoded constants.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"connmon/internal/classifier"
	"connmon/internal/clocktime"
	"connmon/internal/config"
	"connmon/internal/correlation"
	"connmon/internal/flowtable"
	"connmon/internal/model"
	"connmon/internal/probe"
	"connmon/internal/scheduler"
	"connmon/internal/sink"
	"connmon/pkg/capture"
)

func main() {
	mode := flag.String("mode", "sub", "operating mode: 'pub' to capture and publish, 'sub' to subscribe and classify")
	iface := flag.String("iface", "", "interface to capture from (required for pub mode)")
	extraFilter := flag.String("f", "", "extra BPF filter, ANDed with tcp (pub mode)")
	machine := flag.Bool("m", false, "machine-readable output (sub mode)")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("connmon-probe: %v", err)
	}

	switch *mode {
	case "pub":
		runPub(cfg, *iface, *extraFilter)
	case "sub":
		runSub(cfg, *machine)
	default:
		fmt.Fprintf(os.Stderr, "connmon-probe: invalid mode %q\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

func runPub(cfg *config.Config, iface, extraFilter string) {
	if iface == "" {
		log.Println("connmon-probe: -iface is required in pub mode")
		flag.Usage()
		os.Exit(1)
	}

	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("connmon-probe: %v", err)
	}
	defer pub.Close()

	src, err := capture.NewLive(iface, extraFilter)
	if err != nil {
		log.Fatalf("connmon-probe: %v", err)
	}
	defer src.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		published := 0
		for {
			rec, err := src.Next()
			if err != nil {
				log.Printf("connmon-probe: capture source ended: %v", err)
				return
			}
			if err := pub.Publish(rec); err != nil {
				log.Printf("connmon-probe: failed to publish packet: %v", err)
				continue
			}
			published++
			if published%1000 == 0 {
				log.Printf("connmon-probe: %d packets published", published)
			}
		}
	}()

	select {
	case <-sigCh:
		log.Println("connmon-probe: shutdown signal received")
	case <-done:
	}
}

func runSub(cfg *config.Config, machine bool) {
	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("connmon-probe: %v", err)
	}
	defer sub.Close()

	flows := flowtable.New(cfg.Monitor.MaxFlows)
	tsTbl := correlation.New()
	seqTbl := correlation.New()
	clsfr := classifier.New(classifier.Config{}, flows, tsTbl, seqTbl)
	sched := scheduler.New(cfg.Monitor.RtdMaxAge, cfg.Monitor.SumInterval, true)
	norm := clocktime.New()
	snk := sink.NewText(os.Stdout, machine, true)

	handler := func(rec *model.PacketRecord) {
		capTm := norm.Normalize(rec.CaptureSec, rec.CaptureUsec)
		obs, fire := clsfr.Process(rec, capTm)
		if fire {
			if err := snk.Write(obs); err != nil {
				log.Printf("connmon-probe: sink write failed: %v", err)
			}
		}
		cleanDue, summaryDue := sched.Tick(capTm)
		if cleanDue {
			tsTbl.EvictOld(capTm, cfg.Monitor.RtdMaxAge)
			seqTbl.EvictOld(capTm, cfg.Monitor.RtdMaxAge)
			flows.EvictIdle(capTm, cfg.Monitor.FlowMaxIdle)
		}
		if summaryDue {
			c := clsfr.Counters()
			log.Printf("%d flows, %d packets, %d no TS opt, %d uni-directional",
				flows.Len(), c.Packets, c.NoTimestamp, c.Unidirectional)
			clsfr.ResetCounters()
		}
	}

	if err := sub.Start(handler); err != nil {
		log.Fatalf("connmon-probe: subscriber failed to start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("connmon-probe: shutdown signal received")
	snk.Flush()
}
