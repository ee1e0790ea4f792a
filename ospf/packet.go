package ospf

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/davidbalbert/ospfd/common"
)

var (
	ErrShortPacket       = errors.New("ospf: packet too short")
	ErrBadChecksum       = errors.New("ospf: bad checksum")
	ErrBadVersion        = errors.New("ospf: unsupported version")
	ErrUnsupportedPacket = errors.New("ospf: unsupported packet type")
)

type PacketType uint8

const (
	PacketHello PacketType = iota + 1
	PacketDatabaseDescription
	PacketLinkStateRequest
	PacketLinkStateUpdate
	PacketLinkStateAcknowledgement
)

func (t PacketType) String() string {
	switch t {
	case PacketHello:
		return "Hello"
	case PacketDatabaseDescription:
		return "Database Description"
	case PacketLinkStateRequest:
		return "Link State Request"
	case PacketLinkStateUpdate:
		return "Link State Update"
	case PacketLinkStateAcknowledgement:
		return "Link State Acknowledgement"
	default:
		return "Unknown"
	}
}

// Options is the options field carried in Hellos and LSA headers.
type Options uint8

const (
	OptionMT Options = 1 << iota
	OptionE
	OptionMC
	OptionNP
	OptionEA
	OptionDC
)

func (o Options) String() string {
	return fmt.Sprintf("0x%02x", uint8(o))
}

type AuthenticationType uint16

const (
	AuthNone AuthenticationType = iota
	AuthSimple
	AuthCryptographic
)

func (t AuthenticationType) String() string {
	switch t {
	case AuthNone:
		return "none"
	case AuthSimple:
		return "simple"
	case AuthCryptographic:
		return "cryptographic"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// Header holds the common OSPF packet header fields. Version, length and
// checksum are computed by the codec.
type Header struct {
	RouterID           common.RouterID
	AreaID             common.AreaID
	AuthenticationType AuthenticationType
	Authentication     [8]byte
}

func (h *Header) PacketHeader() *Header {
	return h
}

func (h *Header) String() string {
	return fmt.Sprintf("OSPFv2 router=%s area=%s", h.RouterID, h.AreaID)
}

type Packet interface {
	Type() PacketType
	PacketHeader() *Header
}

type Hello struct {
	Header

	NetworkMask            net.IPMask
	HelloInterval          uint16
	Options                Options
	RouterPriority         uint8
	RouterDeadInterval     uint32
	DesignatedRouter       netip.Addr
	BackupDesignatedRouter netip.Addr
	Neighbors              []common.RouterID
}

func (hello *Hello) Type() PacketType {
	return PacketHello
}

func (hello *Hello) String() string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s %s", hello.Header.String(), PacketHello)
	fmt.Fprintf(&b, " mask=%s interval=%d options=%s priority=%d dead=%d dr=%s bdr=%s", net.IP(hello.NetworkMask), hello.HelloInterval, hello.Options, hello.RouterPriority, hello.RouterDeadInterval, hello.DesignatedRouter, hello.BackupDesignatedRouter)

	for _, n := range hello.Neighbors {
		fmt.Fprintf(&b, "\n  neighbor=%s", n)
	}

	return b.String()
}

func (hello *Hello) hasNeighbor(id common.RouterID) bool {
	for _, n := range hello.Neighbors {
		if n == id {
			return true
		}
	}

	return false
}

type LinkStateUpdate struct {
	Header

	LSAs []*LSA
}

func (u *LinkStateUpdate) Type() PacketType {
	return PacketLinkStateUpdate
}

func (u *LinkStateUpdate) String() string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s %s count=%d", u.Header.String(), PacketLinkStateUpdate, len(u.LSAs))
	for _, l := range u.LSAs {
		fmt.Fprintf(&b, "\n  %s", &l.LSAHeader)
	}

	return b.String()
}

// size is the encoded size of the packet, not counting the IP header.
func (u *LinkStateUpdate) size() int {
	n := headerLen + 4
	for _, l := range u.LSAs {
		n += lsaHeaderLen + len(l.Body)
	}

	return n
}

type LinkStateAcknowledgement struct {
	Header

	LSAHeaders []LSAHeader
}

func (a *LinkStateAcknowledgement) Type() PacketType {
	return PacketLinkStateAcknowledgement
}

func (a *LinkStateAcknowledgement) String() string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s %s count=%d", a.Header.String(), PacketLinkStateAcknowledgement, len(a.LSAHeaders))
	for i := range a.LSAHeaders {
		fmt.Fprintf(&b, "\n  %s", &a.LSAHeaders[i])
	}

	return b.String()
}
