package ospf

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/davidbalbert/ospfd/common"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var decodeOptions = gopacket.DecodeOptions{
	NoCopy: true,
}

var serializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// packetLayer adapts a Packet to gopacket's serialization machinery.
type packetLayer struct {
	p Packet
}

func (l *packetLayer) LayerType() gopacket.LayerType {
	return layers.LayerTypeOSPF
}

func (l *packetLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	body, err := encodeBody(l.p)
	if err != nil {
		return err
	}

	data, err := b.PrependBytes(headerLen + len(body))
	if err != nil {
		return err
	}

	h := l.p.PacketHeader()
	data[0] = version
	data[1] = uint8(l.p.Type())
	binary.BigEndian.PutUint16(data[2:4], uint16(headerLen+len(body)))
	binary.BigEndian.PutUint32(data[4:8], uint32(h.RouterID))
	binary.BigEndian.PutUint32(data[8:12], uint32(h.AreaID))
	data[12], data[13] = 0, 0
	binary.BigEndian.PutUint16(data[14:16], uint16(h.AuthenticationType))
	copy(data[headerLen:], body)

	if opts.ComputeChecksums {
		binary.BigEndian.PutUint16(data[12:14], checksum(data[0:16], data[headerLen:]))
	}

	// The checksum doesn't cover the authentication field.
	copy(data[16:24], h.Authentication[:])

	return nil
}

// Encode serializes p into an OSPF packet suitable for an IP payload.
func Encode(p Packet) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, &packetLayer{p: p}); err != nil {
		return nil, fmt.Errorf("ospf: encode %s: %w", p.Type(), err)
	}

	return buf.Bytes(), nil
}

func encodeBody(p Packet) ([]byte, error) {
	switch p := p.(type) {
	case *Hello:
		b := make([]byte, helloLen+4*len(p.Neighbors))
		copy(b[0:4], maskBytes(p.NetworkMask))
		binary.BigEndian.PutUint16(b[4:6], p.HelloInterval)
		b[6] = uint8(p.Options)
		b[7] = p.RouterPriority
		binary.BigEndian.PutUint32(b[8:12], p.RouterDeadInterval)
		copy(b[12:16], to4(p.DesignatedRouter))
		copy(b[16:20], to4(p.BackupDesignatedRouter))
		for idx, id := range p.Neighbors {
			binary.BigEndian.PutUint32(b[helloLen+4*idx:], uint32(id))
		}
		return b, nil
	case *LinkStateUpdate:
		b := make([]byte, 4, p.size()-headerLen)
		binary.BigEndian.PutUint32(b[0:4], uint32(len(p.LSAs)))
		for _, l := range p.LSAs {
			b = append(b, l.Bytes()...)
		}
		return b, nil
	case *LinkStateAcknowledgement:
		b := make([]byte, lsaHeaderLen*len(p.LSAHeaders))
		for idx := range p.LSAHeaders {
			p.LSAHeaders[idx].encodeTo(b[lsaHeaderLen*idx:])
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPacket, p.Type())
	}
}

func maskBytes(m net.IPMask) []byte {
	if len(m) == net.IPv6len {
		return m[12:]
	}
	if len(m) != net.IPv4len {
		return []byte{0, 0, 0, 0}
	}
	return m
}

// Decode parses an OSPF packet, starting at the OSPF header. Database
// Description and Link State Request packets are reported as
// ErrUnsupportedPacket.
func Decode(data []byte) (Packet, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}

	if data[0] != version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[0])
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < headerLen || length > len(data) {
		return nil, fmt.Errorf("%w: length field %d, have %d bytes", ErrShortPacket, length, len(data))
	}
	data = data[:length]

	auType := AuthenticationType(binary.BigEndian.Uint16(data[14:16]))
	if auType != AuthCryptographic && checksum(data[0:16], data[headerLen:]) != 0 {
		return nil, ErrBadChecksum
	}

	switch PacketType(data[1]) {
	case PacketHello, PacketLinkStateAcknowledgement:
		return decodeWithLayers(data)
	case PacketLinkStateUpdate:
		return decodeUpdate(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPacket, PacketType(data[1]))
	}
}

func decodeHeader(l *layers.OSPFv2) Header {
	h := Header{
		RouterID:           common.RouterID(l.RouterID),
		AreaID:             common.AreaID(l.AreaID),
		AuthenticationType: AuthenticationType(l.AuType),
	}
	binary.BigEndian.PutUint64(h.Authentication[:], l.Authentication)

	return h
}

func decodeWithLayers(data []byte) (Packet, error) {
	if PacketType(data[1]) == PacketHello && len(data) < headerLen+helloLen {
		return nil, fmt.Errorf("%w: hello", ErrShortPacket)
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeOSPF, decodeOptions)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return nil, fmt.Errorf("ospf: decode: %w", errLayer.Error())
	}

	l, ok := pkt.Layer(layers.LayerTypeOSPF).(*layers.OSPFv2)
	if !ok {
		return nil, fmt.Errorf("%w: not OSPFv2", ErrBadVersion)
	}

	switch content := l.Content.(type) {
	case layers.HelloPkgV2:
		hello := &Hello{
			Header:                 decodeHeader(l),
			NetworkMask:            net.IPMask(to4(common.AddrFromUint32(content.NetworkMask))),
			HelloInterval:          content.HelloInterval,
			Options:                Options(content.Options),
			RouterPriority:         content.RtrPriority,
			RouterDeadInterval:     content.RouterDeadInterval,
			DesignatedRouter:       common.AddrFromUint32(content.DesignatedRouterID),
			BackupDesignatedRouter: common.AddrFromUint32(content.BackupDesignatedRouterID),
		}
		for _, id := range content.NeighborID {
			hello.Neighbors = append(hello.Neighbors, common.RouterID(id))
		}
		return hello, nil
	case []layers.LSAheader:
		ack := &LinkStateAcknowledgement{Header: decodeHeader(l)}
		for _, h := range content {
			ack.LSAHeaders = append(ack.LSAHeaders, LSAHeader{
				Age:               h.LSAge,
				Options:           Options(h.LSOptions),
				Type:              LSType(h.LSType),
				LinkStateID:       common.AddrFromUint32(h.LinkStateID),
				AdvertisingRouter: common.RouterID(h.AdvRouter),
				SequenceNumber:    int32(h.LSSeqNumber),
				Checksum:          h.LSChecksum,
				Length:            h.Length,
			})
		}
		return ack, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPacket, l.Content)
	}
}

func decodeRawHeader(data []byte) Header {
	h := Header{
		RouterID:           common.RouterID(binary.BigEndian.Uint32(data[4:8])),
		AreaID:             common.AreaID(binary.BigEndian.Uint32(data[8:12])),
		AuthenticationType: AuthenticationType(binary.BigEndian.Uint16(data[14:16])),
	}
	copy(h.Authentication[:], data[16:24])

	return h
}

// decodeUpdate parses a Link State Update by hand. LSA bodies are kept as
// raw bytes so that checksums can be verified and the LSA re-flooded
// unchanged.
func decodeUpdate(data []byte) (Packet, error) {
	u := &LinkStateUpdate{Header: decodeRawHeader(data)}

	body := data[headerLen:]
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: update", ErrShortPacket)
	}

	count := int(binary.BigEndian.Uint32(body[0:4]))
	body = body[4:]

	for n := 0; n < count; n++ {
		h, err := decodeLSAHeader(body)
		if err != nil {
			return nil, fmt.Errorf("lsa %d: %w", n, err)
		}

		if int(h.Length) < lsaHeaderLen || int(h.Length) > len(body) {
			return nil, fmt.Errorf("%w: lsa %d length %d", ErrShortPacket, n, h.Length)
		}

		u.LSAs = append(u.LSAs, &LSA{
			LSAHeader: h,
			Body:      append([]byte(nil), body[lsaHeaderLen:h.Length]...),
		})
		body = body[h.Length:]
	}

	return u, nil
}
