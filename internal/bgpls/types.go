package bgpls

import (
	"net/netip"
)

// NLRI type codes carried in the Link-State AFI (RFC 7752 §3.2).
const (
	NLRITypeNode       uint16 = 1
	NLRITypeLink       uint16 = 2
	NLRITypeIPv4Prefix uint16 = 3
	NLRITypeIPv6Prefix uint16 = 4
)

// Protocol-ID values identifying the IGP (or static source) that
// originated the link-state information.
const (
	ProtoISISL1 uint8 = 1
	ProtoISISL2 uint8 = 2
	ProtoOSPFv2 uint8 = 3
	ProtoDirect uint8 = 4
	ProtoStatic uint8 = 5
	ProtoOSPFv3 uint8 = 6
)

// Node descriptor sub-TLVs.
const (
	TLVAutonomousSystem uint16 = 512
	TLVBGPLSIdentifier  uint16 = 513
	TLVAreaID           uint16 = 514
	TLVIGPRouterID      uint16 = 515
)

// NLRI descriptor TLVs.
const (
	TLVLocalNodeDescriptors        uint16 = 256
	TLVRemoteNodeDescriptors       uint16 = 257
	TLVLinkLocalRemoteIdentifiers  uint16 = 258
	TLVIPv4InterfaceAddress        uint16 = 259
	TLVIPv4NeighborAddress         uint16 = 260
	TLVIPv6InterfaceAddress        uint16 = 261
	TLVIPv6NeighborAddress         uint16 = 262
	TLVMultiTopologyID             uint16 = 263
	TLVOSPFRouteType               uint16 = 264
	TLVIPReachabilityInformation   uint16 = 265
)

// BGP-LS attribute TLVs (node / link / prefix attributes, RFC 7752 §3.3).
const (
	TLVNodeFlagBits           uint16 = 1024
	TLVOpaqueNodeProperties   uint16 = 1025
	TLVNodeName               uint16 = 1026
	TLVISISAreaIdentifier     uint16 = 1027
	TLVIPv4RouterIDLocal      uint16 = 1028
	TLVIPv6RouterIDLocal      uint16 = 1029
	TLVIPv4RouterIDRemote     uint16 = 1030
	TLVIPv6RouterIDRemote     uint16 = 1031
	TLVAdminGroupColor        uint16 = 1088
	TLVMaxLinkBandwidth       uint16 = 1089
	TLVMaxReservableBandwidth uint16 = 1090
	TLVUnreservedBandwidth    uint16 = 1091
	TLVTEDefaultMetric        uint16 = 1092
	TLVLinkProtectionType     uint16 = 1093
	TLVMPLSProtocolMask       uint16 = 1094
	TLVIGPMetric              uint16 = 1095
	TLVSharedRiskLinkGroup    uint16 = 1096
	TLVOpaqueLinkAttribute    uint16 = 1097
	TLVLinkName               uint16 = 1098
	TLVIGPFlags               uint16 = 1152
	TLVRouteTag               uint16 = 1153
	TLVExtendedTag            uint16 = 1154
	TLVPrefixMetric           uint16 = 1155
	TLVOSPFForwardingAddress  uint16 = 1156
	TLVOpaquePrefixAttribute  uint16 = 1157
)

// tlvHeaderLen is the fixed type+length prefix preceding every TLV value.
const tlvHeaderLen = 4

// IGP Router-ID encodings, selected by the sub-TLV's declared length alone;
// no separate discriminant exists on the wire.
const (
	igpRouterIDISISLen       = 6
	igpRouterIDISISPseudoLen = 7
	igpRouterIDOSPFLen       = 4
	igpRouterIDOSPFPseudoLen = 8
)

// RouterIDKind classifies the IGP Router-ID variant of a node descriptor.
type RouterIDKind uint8

const (
	RouterIDNone RouterIDKind = iota
	RouterIDISIS
	RouterIDISISPseudo
	RouterIDOSPF
	RouterIDOSPFPseudo
)

func (k RouterIDKind) String() string {
	switch k {
	case RouterIDISIS:
		return "isis"
	case RouterIDISISPseudo:
		return "isis-pseudonode"
	case RouterIDOSPF:
		return "ospf"
	case RouterIDOSPFPseudo:
		return "ospf-pseudonode"
	default:
		return "none"
	}
}

// ExtHeader prefixes every Link-State NLRI.
type ExtHeader struct {
	ProtoID    uint8
	Identifier uint64
}

// NodeDescriptor identifies one topology node. All fields are optional on
// the wire; pointer fields are nil when the corresponding sub-TLV was
// absent.
type NodeDescriptor struct {
	AutonomousSystem *uint32
	BGPLSIdentifier  *uint32
	AreaID           *uint32
	IGPRouterID      []byte // 6/7 bytes IS-IS, 4/8 bytes OSPF
	RouterIDKind     RouterIDKind
}

// LinkDescriptor identifies one unidirectional link between two nodes.
// Interface/neighbor addresses are address-family mutually exclusive; the
// unset family's fields are the zero netip.Addr.
type LinkDescriptor struct {
	Local  NodeDescriptor
	Remote NodeDescriptor

	LocalLinkID  uint16
	RemoteLinkID uint16
	HasLinkIDs   bool

	InterfaceAddr netip.Addr
	NeighborAddr  netip.Addr

	MultiTopologyIDs []uint16
}

// PrefixDescriptor identifies one IGP prefix advertised by a node.
type PrefixDescriptor struct {
	Local NodeDescriptor

	MultiTopologyIDs []uint16
	OSPFRouteType    uint8
	HasOSPFRouteType bool

	// ReachabilityPrefixLen is the raw 1-byte prefix-length field;
	// Reachability holds exactly that many bytes. The field is read as a
	// byte count, matching the legacy convention this codec preserves
	// (RFC 7752 defines it as a bit count with a minimal octet value).
	ReachabilityPrefixLen uint8
	Reachability          []byte
}

// NLRI is one decoded Link-State NLRI of any of the three kinds.
type NLRI interface {
	// Kind returns the wire NLRI type code.
	Kind() uint16
	Header() ExtHeader
}

type NodeNLRI struct {
	ExtHeader
	Local NodeDescriptor
}

func (n *NodeNLRI) Kind() uint16      { return NLRITypeNode }
func (n *NodeNLRI) Header() ExtHeader { return n.ExtHeader }

type LinkNLRI struct {
	ExtHeader
	Link LinkDescriptor
}

func (n *LinkNLRI) Kind() uint16      { return NLRITypeLink }
func (n *LinkNLRI) Header() ExtHeader { return n.ExtHeader }

type PrefixNLRI struct {
	ExtHeader
	// IPv6 distinguishes the IPv6 Prefix NLRI type (4) from IPv4 (3);
	// the descriptor encoding is otherwise identical.
	IPv6   bool
	Prefix PrefixDescriptor
}

func (n *PrefixNLRI) Kind() uint16 {
	if n.IPv6 {
		return NLRITypeIPv6Prefix
	}
	return NLRITypeIPv4Prefix
}
func (n *PrefixNLRI) Header() ExtHeader { return n.ExtHeader }

// ProtoIDName returns the display name for a Protocol-ID value.
func ProtoIDName(p uint8) string {
	switch p {
	case ProtoISISL1:
		return "IS-IS Level 1"
	case ProtoISISL2:
		return "IS-IS Level 2"
	case ProtoOSPFv2:
		return "OSPFv2"
	case ProtoDirect:
		return "Direct"
	case ProtoStatic:
		return "Static"
	case ProtoOSPFv3:
		return "OSPFv3"
	default:
		return "Unknown"
	}
}

// NLRITypeName returns the display name for an NLRI type code.
func NLRITypeName(t uint16) string {
	switch t {
	case NLRITypeNode:
		return "Node"
	case NLRITypeLink:
		return "Link"
	case NLRITypeIPv4Prefix:
		return "IPv4 Prefix"
	case NLRITypeIPv6Prefix:
		return "IPv6 Prefix"
	default:
		return "Unknown"
	}
}
