package ospf

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/common"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type LSType uint8

const (
	LSTypeUnknown LSType = 0

	LSTypeRouter      LSType = 1
	LSTypeNetwork     LSType = 2
	LSTypeSummary     LSType = 3
	LSTypeASBRSummary LSType = 4
	LSTypeASExternal  LSType = 5
)

func (t LSType) String() string {
	switch t {
	case LSTypeRouter:
		return "Router"
	case LSTypeNetwork:
		return "Network"
	case LSTypeSummary:
		return "Summary"
	case LSTypeASBRSummary:
		return "ASBR-Summary"
	case LSTypeASExternal:
		return "AS-External"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

func (t LSType) isKnown() bool {
	return t >= LSTypeRouter && t <= LSTypeASExternal
}

// LSAKey identifies an LSA instance independent of its age, sequence number
// and checksum.
type LSAKey struct {
	Type              LSType
	LinkStateID       netip.Addr
	AdvertisingRouter common.RouterID
}

func (k LSAKey) String() string {
	return fmt.Sprintf("%s id=%s adv=%s", k.Type, k.LinkStateID, k.AdvertisingRouter)
}

type LSAHeader struct {
	Age               uint16
	Options           Options
	Type              LSType
	LinkStateID       netip.Addr
	AdvertisingRouter common.RouterID
	SequenceNumber    int32
	Checksum          uint16
	Length            uint16
}

func (h *LSAHeader) Key() LSAKey {
	return LSAKey{
		Type:              h.Type,
		LinkStateID:       h.LinkStateID,
		AdvertisingRouter: h.AdvertisingRouter,
	}
}

func (h *LSAHeader) String() string {
	return fmt.Sprintf("%s age=%d seq=0x%08x cksum=0x%04x", h.Key(), h.Age, uint32(h.SequenceNumber), h.Checksum)
}

// Compare orders two instances of the same LSA by recency (RFC 2328 13.1).
// It returns 1 if h is more recent than other, -1 if it is less recent, and 0
// if they are considered the same instance.
func (h *LSAHeader) Compare(other *LSAHeader) int {
	s1, s2 := h.SequenceNumber, other.SequenceNumber
	if s1 < s2 {
		return -1
	} else if s1 > s2 {
		return 1
	}

	c1, c2 := h.Checksum, other.Checksum
	if c1 < c2 {
		return -1
	} else if c1 > c2 {
		return 1
	}

	a1, a2 := int(h.Age), int(other.Age)
	if a1 != MaxAge && a2 == MaxAge {
		return -1
	} else if a1 == MaxAge && a2 != MaxAge {
		return 1
	}

	diff := abs(a1 - a2)
	if diff > MaxAgeDiff && a1 < a2 {
		return 1
	} else if diff > MaxAgeDiff && a1 > a2 {
		return -1
	}

	return 0
}

func (h *LSAHeader) encodeTo(data []byte) {
	binary.BigEndian.PutUint16(data[0:2], h.Age)
	data[2] = uint8(h.Options)
	data[3] = uint8(h.Type)
	copy(data[4:8], to4(h.LinkStateID))
	binary.BigEndian.PutUint32(data[8:12], uint32(h.AdvertisingRouter))
	binary.BigEndian.PutUint32(data[12:16], uint32(h.SequenceNumber))
	binary.BigEndian.PutUint16(data[16:18], h.Checksum)
	binary.BigEndian.PutUint16(data[18:20], h.Length)
}

func decodeLSAHeader(data []byte) (LSAHeader, error) {
	if len(data) < lsaHeaderLen {
		return LSAHeader{}, fmt.Errorf("%w: lsa header", ErrShortPacket)
	}

	return LSAHeader{
		Age:               binary.BigEndian.Uint16(data[0:2]),
		Options:           Options(data[2]),
		Type:              LSType(data[3]),
		LinkStateID:       common.AddrFromUint32(binary.BigEndian.Uint32(data[4:8])),
		AdvertisingRouter: common.RouterID(binary.BigEndian.Uint32(data[8:12])),
		SequenceNumber:    int32(binary.BigEndian.Uint32(data[12:16])),
		Checksum:          binary.BigEndian.Uint16(data[16:18]),
		Length:            binary.BigEndian.Uint16(data[18:20]),
	}, nil
}

// An LSA is a header plus an opaque body. With the exception of Age, an LSA
// is never modified once it has been installed or handed to a neighbor, so
// callers that need a different age make a copy with Clone.
type LSA struct {
	LSAHeader
	Body []byte
}

func (l *LSA) Clone() *LSA {
	return &LSA{
		LSAHeader: l.LSAHeader,
		Body:      slices.Clone(l.Body),
	}
}

func (l *LSA) Bytes() []byte {
	b := make([]byte, lsaHeaderLen+len(l.Body))
	h := l.LSAHeader
	h.Length = uint16(len(b))
	h.encodeTo(b)
	copy(b[lsaHeaderLen:], l.Body)

	return b
}

func (l *LSA) IsChecksumValid() bool {
	return fletcher16Checksum(l.Bytes()[2:]) == 0
}

// UpdateChecksum sets Length and Checksum from the current contents.
// The age field is not covered by the checksum.
func (l *LSA) UpdateChecksum() {
	l.Length = uint16(lsaHeaderLen + len(l.Body))
	b := l.Bytes()
	l.Checksum = fletcher16GenerateChecksum(b[2:], 14)
}

func fletcher16(data ...[]byte) (r0, r1 int) {
	var c0, c1 int

	for _, d := range data {
		for _, b := range d {
			c0 = (c0 + int(b)) % 255
			c1 = (c1 + c0) % 255
		}
	}

	return c0, c1
}

func fletcher16Checksum(data []byte) uint16 {
	c0, c1 := fletcher16(data)
	return uint16(c1<<8 | c0)
}

// offset is the offset of the checksum field in the data
func fletcher16GenerateChecksum(data []byte, offset int) uint16 {
	c0, c1 := fletcher16(data[:offset], []byte{0, 0}, data[offset+2:])

	x := ((len(data)-offset-1)*c0 - c1) % 255
	if x <= 0 {
		x += 255
	}

	y := 510 - c0 - x
	if y > 255 {
		y -= 255
	}

	return uint16(x<<8 | y)
}

type installedLSA struct {
	lsa         *LSA
	installedAt time.Time

	// flushed is set once a MaxAge instance has been flooded.
	flushed bool
}

// age returns the LSA's age as of now, counting the time it has spent in the
// database.
func (e *installedLSA) age(now time.Time) uint16 {
	age := int(e.lsa.Age) + int(now.Sub(e.installedAt)/time.Second)
	if age > MaxAge {
		return MaxAge
	}

	return uint16(age)
}

func (e *installedLSA) current(now time.Time) *LSA {
	l := e.lsa.Clone()
	l.Age = e.age(now)
	return l
}

type lsdb map[LSAKey]*installedLSA

func newLSDB() lsdb {
	return lsdb(make(map[LSAKey]*installedLSA))
}

func (db lsdb) get(key LSAKey, now time.Time) *LSA {
	e, ok := db[key]
	if !ok {
		return nil
	}

	return e.current(now)
}

func (db lsdb) installedAt(key LSAKey) (time.Time, bool) {
	e, ok := db[key]
	if !ok {
		return time.Time{}, false
	}

	return e.installedAt, true
}

func (db lsdb) install(l *LSA, now time.Time) {
	db[l.Key()] = &installedLSA{
		lsa:         l.Clone(),
		installedAt: now,
	}
}

func (db lsdb) delete(key LSAKey) {
	delete(db, key)
}

// keys returns the keys in a stable order.
func (db lsdb) keys() []LSAKey {
	keys := maps.Keys(db)
	slices.SortFunc(keys, func(a, b LSAKey) bool {
		if a.Type != b.Type {
			return a.Type < b.Type
		}

		if c := a.LinkStateID.Compare(b.LinkStateID); c != 0 {
			return c < 0
		}

		return a.AdvertisingRouter < b.AdvertisingRouter
	})

	return keys
}
