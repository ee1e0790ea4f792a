package ospf

import (
	"math"
	"net/netip"
	"time"

	"github.com/davidbalbert/ospfd/common"
)

var (
	AllSPFRouters = netip.MustParseAddr("224.0.0.5")
	AllDRouters   = netip.MustParseAddr("224.0.0.6")
)

const (
	BackboneAreaID = common.BackboneAreaID

	VirtualLinkTTL = 32

	version = 2
)

// Architectural constants (RFC 2328 Appendix B).
const (
	LSRefreshTime         = 1800 // 30 minutes
	MinLSInterval         = 5
	MinLSArrival          = 1
	MaxAge                = 3600 // 1 hour
	MaxAgeDiff            = 900  // 15 minutes
	InitialSequenceNumber = math.MinInt32 + 1
	MaxSequenceNumber     = math.MaxInt32
)

const (
	ipv4MaxHeaderLen = 60
	ipv4DatagramLen  = 65536
	headerLen        = 24
	helloLen         = 20 // not counting the neighbor list
	lsaHeaderLen     = 20
)

const helloInitialDelay = 100 * time.Millisecond
