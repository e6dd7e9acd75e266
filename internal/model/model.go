// Package model holds the data types shared across the capture, correlation,
// and classification stages: the per-packet input, the flow key/record, and
// the per-packet observation that is eventually handed to a sink.
package model

import (
	"fmt"
	"net"
)

// Family tags an Endpoint as carrying an IPv4 or IPv6 address.
type Family uint8

const (
	V4 Family = iota
	V6
)

// Endpoint is a fixed-layout address+port pair. It is deliberately a value
// type (no net.IP/interface) so FlowKey stays comparable and usable as a map
// key without allocation.
type Endpoint struct {
	Family Family
	Addr   [16]byte // IPv4 stored in the first 4 bytes, rest zero
	Port   uint16
}

// NewEndpoint builds an Endpoint from a net.IP and port, tagging the family
// based on whether the address has a valid 4-byte form.
func NewEndpoint(ip net.IP, port uint16) Endpoint {
	var e Endpoint
	e.Port = port
	if v4 := ip.To4(); v4 != nil {
		e.Family = V4
		copy(e.Addr[:4], v4)
		return e
	}
	e.Family = V6
	if v6 := ip.To16(); v6 != nil {
		copy(e.Addr[:], v6)
	}
	return e
}

// IP reconstructs a net.IP from the Endpoint.
func (e Endpoint) IP() net.IP {
	if e.Family == V4 {
		return net.IP(e.Addr[:4])
	}
	b := make([]byte, 16)
	copy(b, e.Addr[:])
	return net.IP(b)
}

// String renders "ip:port".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP().String(), e.Port)
}

// SameIP reports whether e and o carry the same family and address,
// ignoring Port.
func (e Endpoint) SameIP(o Endpoint) bool {
	return e.Family == o.Family && e.Addr == o.Addr
}

// TCPFlags mirrors the subset of TCP header flags the classifier needs.
type TCPFlags struct {
	SYN bool
	FIN bool
	ACK bool
	RST bool
	PSH bool
	URG bool
}

// OnlyACK reports whether this packet's flag set is exactly {ACK}, the
// condition spec.md §4.3 step 11 requires for duplicate-ACK detection.
func (f TCPFlags) OnlyACK() bool {
	return f.ACK && !f.SYN && !f.FIN && !f.RST && !f.PSH && !f.URG
}

// Timestamp is a TCP timestamp option (TSval, ECR), present iff Ok is true.
type Timestamp struct {
	TSval uint32
	ECR   uint32
	Ok    bool
}

// PacketRecord is the normalized, immutable per-packet input handed to the
// classifier by the capture layer. Capture time is kept as separate whole
// seconds + microseconds, matching the precision the capture source
// actually provides, so normalization in internal/clocktime can avoid lossy
// float conversion of the epoch.
type PacketRecord struct {
	CaptureSec  int64
	CaptureUsec int64

	Src, Dst   Endpoint
	Flags      TCPFlags
	Seq, Ack   uint32
	PayloadLen int
	WireLen    int
	TS         Timestamp
}

// FlowKey is the directional 4-tuple identifying a flow. Reversing Src/Dst
// yields the key of the opposite-direction flow.
type FlowKey struct {
	Src, Dst Endpoint
}

// Reverse returns the key of the opposite-direction flow.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{Src: k.Dst, Dst: k.Src}
}

// Name renders the canonical "srcIP:srcPort+dstIP:dstPort" flow name.
func (k FlowKey) Name() string {
	return k.Src.String() + "+" + k.Dst.String()
}

// FlowRecord is the per-flow state tracked by the FlowTable. See spec.md §3
// for the field-level invariants (bytes_sent monotonic, bidirectional
// monotonic, at most one record per FlowKey).
type FlowRecord struct {
	Name          string
	BytesSent     uint64
	LastTime      float64
	LastSeq       uint32
	LastPay       uint32
	LastAck       uint32
	Bidirectional bool
}

// Observation is the per-packet result emitted by the classifier when at
// least one of {TSval-RTT, seq-RTT, sequence delta, duplicate-ACK} fired.
// Any *Ok field false means that component was not observed on this packet.
// In both text formats an absent RTT renders as "*" and an absent
// duplicate-ACK interval as "-"; DSeq is always printed.
type Observation struct {
	CaptureSec  int64
	CaptureUsec int64

	TSRTT   float64
	TSRTTOk bool

	SeqRTT   float64
	SeqRTTOk bool

	DSeq   int32
	DSeqOk bool

	DupACKInterval float64
	DupACKOk       bool

	PayloadLen int
	FlowBytes  uint64
	FlowName   string
}

// Counters tallies the named per-run statistics spec.md §4.4/§4.7 require
// for periodic and final summaries. Capture-layer rejects (not TCP, not
// IPv4/IPv6) are tallied separately by pkg/capture.Counters, since the
// classifier never sees those packets.
type Counters struct {
	Packets        int
	Flows          int
	Unidirectional int
	NoTimestamp    int
}
