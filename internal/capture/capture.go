// Package capture is an optional diagnostic tap that mirrors raw TCP
// segments seen by a connection agent onto a pcap file for offline
// protocol debugging with Wireshark. It is a side-channel consumer,
// never on the hot path: a full queue drops the segment rather than
// applying backpressure to the connection that fed it.
package capture

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Segment is one observed direction of one TCP chunk: the bytes the
// agent's readLoop received, or the bytes it wrote out.
type Segment struct {
	Src, Dst net.Addr
	Payload  []byte
	Outbound bool
}

const queueDepth = 256

// Tap writes Segments to a pcap file as synthetic Ethernet/IPv4/TCP
// frames. The sequence numbers it fabricates are monotonically
// increasing per direction and exist only to make the stream
// reassemble cleanly in a packet analyzer; they carry no relation to
// the real wire sequence numbers.
type Tap struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	seq    map[string]uint32

	segments chan Segment
	done     chan struct{}
}

// NewTap opens (or creates) the pcap file at path and starts the
// background writer goroutine.
func NewTap(path string) (*Tap, error) {
	f, err := newPcapFile(path)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: capture: open pcap file: %w", err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("mrcpd: capture: write pcap header: %w", err)
	}

	t := &Tap{
		w:        w,
		closer:   f,
		seq:      make(map[string]uint32),
		segments: make(chan Segment, queueDepth),
		done:     make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// Observe enqueues seg for writing. It never blocks: when the queue is
// full the segment is dropped and a warning is logged, since a slow
// disk must never stall MRCPv2 message processing.
func (t *Tap) Observe(seg Segment) {
	select {
	case t.segments <- seg:
	default:
		slog.Warn("mrcpd: capture: tap queue full, dropping segment")
	}
}

// Close stops the writer goroutine and closes the underlying file.
func (t *Tap) Close() error {
	close(t.segments)
	<-t.done
	return t.closer.Close()
}

func (t *Tap) run() {
	defer close(t.done)
	for seg := range t.segments {
		if err := t.write(seg); err != nil {
			slog.Error("mrcpd: capture: write packet", "error", err)
		}
	}
}

func (t *Tap) write(seg Segment) error {
	srcIP, srcPort := splitHostPort(seg.Src)
	dstIP, dstPort := splitHostPort(seg.Dst)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       1,
		SrcIP:    srcIP,
		DstIP:    dstIP,
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     t.nextSeq(seg),
		PSH:     true,
		ACK:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("set checksum network layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(seg.Payload)); err != nil {
		return fmt.Errorf("serialize layers: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}, buf.Bytes())
}

func (t *Tap) nextSeq(seg Segment) uint32 {
	key := fmt.Sprintf("%v->%v", seg.Src, seg.Dst)
	n := t.seq[key]
	t.seq[key] = n + uint32(len(seg.Payload))
	return n
}

func splitHostPort(addr net.Addr) (net.IP, uint16) {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		ip := tcpAddr.IP.To4()
		if ip == nil {
			ip = net.IPv4zero
		}
		return ip, uint16(tcpAddr.Port)
	}
	return net.IPv4zero, 0
}
