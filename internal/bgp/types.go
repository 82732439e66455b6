package bgp

import "github.com/route-beacon/linkstate-ingester/internal/bgpls"

// BGP path attribute type codes.
const (
	AttrTypeOrigin        uint8 = 1
	AttrTypeASPath        uint8 = 2
	AttrTypeNextHop       uint8 = 3
	AttrTypeMED           uint8 = 4
	AttrTypeLocalPref     uint8 = 5
	AttrTypeMPReachNLRI   uint8 = 14
	AttrTypeMPUnreachNLRI uint8 = 15
	AttrTypeLinkState     uint8 = 29
)

// Link-State address family (RFC 7752).
const (
	AFILinkState  uint16 = 16388
	SAFILinkState uint8  = 71
)

// BGP message types.
const (
	BGPMsgTypeUpdate uint8 = 2
)

// BGP UPDATE header size: marker(16) + length(2) + type(1) = 19
const BGPHeaderSize = 19

// LinkStateEvent represents a single Link-State announcement or withdrawal
// extracted from a BGP UPDATE. The decoded NLRI and the raw attribute blob
// are owned by the event.
type LinkStateEvent struct {
	Action string // "A" or "D"
	NLRI   bgpls.NLRI

	// LinkStateAttr is the raw TLV chain of the BGP-LS path attribute
	// (type 29), shared by every announce event of the same UPDATE. Nil
	// on withdrawals and when the attribute was absent.
	LinkStateAttr []byte
}
