// Package capture is the packet source external collaborator of spec.md §6:
// it owns live interface / offline pcap-file acquisition, BPF filtering,
// and decoding a raw packet into a model.PacketRecord. It never applies
// monitoring policy — that's internal/classifier's job.
package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"connmon/internal/model"
)

// snapLen is the maximum bytes captured per packet: IPv4/IPv6 + TCP header
// + options, per spec.md §6.
const snapLen int32 = 144

// defaultFilter is ANDed with any user-supplied BPF expression (spec.md §6).
const defaultFilter = "tcp"

// ErrSkip is returned by decode for packets that are not a usable IPv4/IPv6
// TCP segment; Source.Next skips them internally and never returns ErrSkip
// to its caller (spec.md §4.7 makes parse failures a silently-skipped,
// counted condition, not a caller-visible error).
var ErrSkip = errors.New("capture: packet not a usable IPv4/IPv6 TCP segment")

// Counters tallies why packets were skipped at the capture layer, surfaced
// through the run loop's summary (spec.md §4.4/§4.7).
type Counters struct {
	NotTCP    int
	NotV4OrV6 int
}

// Source yields PacketRecords in capture order.
type Source interface {
	// Next returns the next decodable packet, skipping anything that isn't
	// a usable IPv4/IPv6 TCP segment. Returns io.EOF when the source is
	// exhausted (offline) or closed.
	Next() (*model.PacketRecord, error)
	Close() error
	Counters() Counters
}

type handleSource struct {
	handle   *pcap.Handle
	src      *gopacket.PacketSource
	counters Counters
}

// NewLive opens a live capture on the named interface, applying the default
// "tcp" filter ANDed with any extra user filter.
func NewLive(iface, extraFilter string) (Source, error) {
	handle, err := pcap.OpenLive(iface, snapLen, false, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("capture: open live interface %q: %w", iface, err)
	}
	if err := applyFilter(handle, extraFilter); err != nil {
		handle.Close()
		return nil, err
	}
	return &handleSource{handle: handle, src: gopacket.NewPacketSource(handle, handle.LinkType())}, nil
}

// NewOffline opens a pcap file for replay, applying the same filter policy
// as NewLive.
func NewOffline(path, extraFilter string) (Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open pcap file %q: %w", path, err)
	}
	if err := applyFilter(handle, extraFilter); err != nil {
		handle.Close()
		return nil, err
	}
	return &handleSource{handle: handle, src: gopacket.NewPacketSource(handle, handle.LinkType())}, nil
}

func applyFilter(handle *pcap.Handle, extra string) error {
	filter := defaultFilter
	if extra != "" {
		filter = filter + " and (" + extra + ")"
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("capture: apply BPF filter %q: %w", filter, err)
	}
	return nil
}

func (h *handleSource) Next() (*model.PacketRecord, error) {
	for {
		pkt, err := h.src.NextPacket()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			// Corrupt/truncated packet at the capture layer; skip and
			// keep going (spec.md §4.7).
			continue
		}
		rec, decErr := decode(pkt, &h.counters)
		if decErr != nil {
			continue
		}
		return rec, nil
	}
}

func (h *handleSource) Close() error {
	h.handle.Close()
	return nil
}

func (h *handleSource) Counters() Counters { return h.counters }

// decode extracts a model.PacketRecord from a gopacket.Packet, applying
// spec.md §4.7's per-packet skip conditions (no TCP PDU, unrecognized L3).
func decode(pkt gopacket.Packet, c *Counters) (*model.PacketRecord, error) {
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		c.NotTCP++
		return nil, ErrSkip
	}
	tcp := tcpLayer.(*layers.TCP)

	// Payload length comes from the IP header lengths where they are usable,
	// since snapLen cuts the captured payload short.
	var src, dst model.Endpoint
	payLen := len(tcp.Payload)
	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		src = model.NewEndpoint(ip.SrcIP, uint16(tcp.SrcPort))
		dst = model.NewEndpoint(ip.DstIP, uint16(tcp.DstPort))
		if n := int(ip.Length) - int(ip.IHL)*4 - int(tcp.DataOffset)*4; ip.Length != 0 && n >= 0 {
			payLen = n
		}
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		src = model.NewEndpoint(ip.SrcIP, uint16(tcp.SrcPort))
		dst = model.NewEndpoint(ip.DstIP, uint16(tcp.DstPort))
		if n := int(ip.Length) - int(tcp.DataOffset)*4; ip.NextHeader == layers.IPProtocolTCP && ip.Length != 0 && n >= 0 {
			payLen = n
		}
	default:
		c.NotV4OrV6++
		return nil, ErrSkip
	}

	rec := &model.PacketRecord{
		Src: src, Dst: dst,
		Flags: model.TCPFlags{
			SYN: tcp.SYN, FIN: tcp.FIN, ACK: tcp.ACK,
			RST: tcp.RST, PSH: tcp.PSH, URG: tcp.URG,
		},
		Seq:        tcp.Seq,
		Ack:        tcp.Ack,
		PayloadLen: payLen,
		WireLen:    len(pkt.Data()),
	}

	if meta := pkt.Metadata(); meta != nil {
		rec.CaptureSec = meta.Timestamp.Unix()
		rec.CaptureUsec = int64(meta.Timestamp.Nanosecond() / 1000)
		if meta.Length > 0 {
			rec.WireLen = meta.Length
		}
	}

	rec.TS = decodeTimestampOption(tcp)
	return rec, nil
}

// decodeTimestampOption pulls TSval/ECR out of the TCP options list, since
// gopacket.layers.TCP doesn't parse the timestamp option itself.
func decodeTimestampOption(tcp *layers.TCP) model.Timestamp {
	for _, opt := range tcp.Options {
		if opt.OptionType == layers.TCPOptionKindTimestamps && len(opt.OptionData) == 8 {
			return model.Timestamp{
				TSval: beUint32(opt.OptionData[0:4]),
				ECR:   beUint32(opt.OptionData[4:8]),
				Ok:    true,
			}
		}
	}
	return model.Timestamp{}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
