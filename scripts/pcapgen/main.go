// Command pcapgen writes a synthetic pcap file of bidirectional TCP flows
// carrying TSval/ECR timestamp options, for exercising connmon's correlation
// engines without a live capture. Grounded on the teacher's
// scripts/pcapgen/main.go (gopacket/pcapgo serialize-and-write shape),
// re-keyed from random single-SYN packets to realistic handshake + data +
// ack flow sequences carrying the TCP options the classifier needs.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "output pcap file path")
	flowCount := flag.Int("flows", 10, "number of bidirectional TCP flows to generate")
	segsPerFlow := flag.Int("segs", 20, "number of data segments per flow, client to server")
	dropEvery := flag.Int("drop-every", 7, "every Nth data segment is skipped to create a sequence hole (0 disables)")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("pcapgen: failed to create output file: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("pcapgen: failed to write pcap header: %v", err)
	}

	rand.Seed(1) // deterministic addresses, ports and sequence numbers; timestamps start at the current time
	now := time.Now()
	clockStep := 5 * time.Millisecond

	total := 0
	for i := 0; i < *flowCount; i++ {
		client := randIPv4()
		server := randIPv4()
		clientPort := layers.TCPPort(1024 + rand.Intn(60000))
		serverPort := layers.TCPPort(80)

		n, err := writeFlow(w, &now, clockStep, client, clientPort, server, serverPort, *segsPerFlow, *dropEvery)
		if err != nil {
			log.Fatalf("pcapgen: flow %d: %v", i, err)
		}
		total += n
	}

	log.Printf("pcapgen: wrote %d packets across %d flows into %s", total, *flowCount, *outputFile)
}

func randIPv4() net.IP {
	return net.IPv4(byte(10), byte(rand.Intn(256)), byte(rand.Intn(256)), byte(1+rand.Intn(254)))
}

// writeFlow emits a SYN/SYN-ACK/ACK handshake followed by segsPerFlow data
// segments (client->server) each acked by the server, all carrying TSval/ECR
// options so the written pcap exercises both of connmon's correlation
// engines. Every dropEvery'th data segment is skipped, together with its
// ACK, to produce a sequence-hole observation on the next segment.
func writeFlow(w *pcapgo.Writer, clock *time.Time, step time.Duration, cIP net.IP, cPort layers.TCPPort, sIP net.IP, sPort layers.TCPPort, segsPerFlow, dropEvery int) (int, error) {
	clientSeq := rand.Uint32()
	serverSeq := rand.Uint32()
	tsval := uint32(1000)

	written := 0
	emit := func(srcIP, dstIP net.IP, srcPort, dstPort layers.TCPPort, seq, ack uint32, syn, ackFlag bool, tsval, tsecr uint32, payload []byte) error {
		ip := &layers.IPv4{SrcIP: srcIP, DstIP: dstIP, Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP}
		tcp := &layers.TCP{
			SrcPort: srcPort, DstPort: dstPort,
			Seq: seq, Ack: ack,
			SYN: syn, ACK: ackFlag,
			Window: 14600,
			Options: []layers.TCPOption{{
				OptionType:   layers.TCPOptionKindTimestamps,
				OptionLength: 10,
				OptionData:   tsOptionData(tsval, tsecr),
			}},
		}
		tcp.SetNetworkLayerForChecksum(ip)

		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
			EthernetType: layers.EthernetTypeIPv4,
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
		var layersToWrite []gopacket.SerializableLayer
		layersToWrite = append(layersToWrite, eth, ip, tcp)
		if len(payload) > 0 {
			layersToWrite = append(layersToWrite, gopacket.Payload(payload))
		}
		if err := gopacket.SerializeLayers(buf, opts, layersToWrite...); err != nil {
			return err
		}

		*clock = (*clock).Add(step)
		ci := gopacket.CaptureInfo{Timestamp: *clock, CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			return err
		}
		written++
		return nil
	}

	// Handshake: establishes bidirectionality before any RTT-bearing segment.
	if err := emit(cIP, sIP, cPort, sPort, clientSeq, 0, true, false, tsval, 0, nil); err != nil {
		return written, err
	}
	tsval++
	clientSeq++
	if err := emit(sIP, cIP, sPort, cPort, serverSeq, clientSeq, true, true, tsval, tsval-1, nil); err != nil {
		return written, err
	}
	tsval++
	serverSeq++
	if err := emit(cIP, sIP, cPort, sPort, clientSeq, serverSeq, false, true, tsval, tsval-1, nil); err != nil {
		return written, err
	}
	tsval++

	payload := make([]byte, 200)
	for i := 0; i < segsPerFlow; i++ {
		if dropEvery > 0 && (i+1)%dropEvery == 0 {
			// Skip this segment's bytes entirely: the next segment's Seq
			// jumps ahead, producing a sequence-hole observation.
			clientSeq += uint32(len(payload))
			continue
		}
		if err := emit(cIP, sIP, cPort, sPort, clientSeq, serverSeq, false, true, tsval, tsval-1, payload); err != nil {
			return written, err
		}
		dataTsval := tsval
		clientSeq += uint32(len(payload))
		tsval++

		if err := emit(sIP, cIP, sPort, cPort, serverSeq, clientSeq, false, true, tsval, dataTsval, nil); err != nil {
			return written, err
		}
		tsval++
	}
	return written, nil
}

func tsOptionData(tsval, tsecr uint32) []byte {
	b := make([]byte, 8)
	b[0] = byte(tsval >> 24)
	b[1] = byte(tsval >> 16)
	b[2] = byte(tsval >> 8)
	b[3] = byte(tsval)
	b[4] = byte(tsecr >> 24)
	b[5] = byte(tsecr >> 16)
	b[6] = byte(tsecr >> 8)
	b[7] = byte(tsecr)
	return b
}
