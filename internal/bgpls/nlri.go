package bgpls

import (
	"fmt"

	"go.uber.org/zap"
)

// Decoder turns raw Link-State NLRI bytes into typed descriptors. It holds
// no per-parse state; one Decoder may serve any number of sequential calls,
// each of which owns its input and output exclusively.
type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// DecodeNLRI dispatches one NLRI value (the bytes following the NLRI
// type/length framing) to the decoder for the given wire type.
func (d *Decoder) DecodeNLRI(nlriType uint16, b []byte) (NLRI, error) {
	switch nlriType {
	case NLRITypeNode:
		return d.DecodeNodeNLRI(b)
	case NLRITypeLink:
		return d.DecodeLinkNLRI(b)
	case NLRITypeIPv4Prefix:
		return d.DecodePrefixNLRI(b, false)
	case NLRITypeIPv6Prefix:
		return d.DecodePrefixNLRI(b, true)
	default:
		return nil, fmt.Errorf("%w: NLRI type %d", ErrUnknownType, nlriType)
	}
}

func decodeExtHeader(r *reader, hdr *ExtHeader) error {
	proto, err := r.Uint8("proto-id")
	if err != nil {
		return err
	}
	ident, err := r.Uint64("identifier")
	if err != nil {
		return err
	}
	hdr.ProtoID = proto
	hdr.Identifier = ident
	return nil
}

// DecodeNodeNLRI decodes one Node NLRI: the extended header followed by a
// single LOCAL_NODE_DESCRIPTORS TLV enclosing the node descriptor sub-TLVs.
func (d *Decoder) DecodeNodeNLRI(b []byte) (*NodeNLRI, error) {
	n := &NodeNLRI{}
	r := newReader(b)

	if err := decodeExtHeader(r, &n.ExtHeader); err != nil {
		return nil, err
	}

	typ, length, err := r.tlvHeader("node descriptors")
	if err != nil {
		return nil, err
	}
	if typ != TLVLocalNodeDescriptors {
		return nil, fmt.Errorf("%w: expected local node descriptors (%d), got type %d",
			ErrStructural, TLVLocalNodeDescriptors, typ)
	}
	if err := r.need("node descriptors", int(length)); err != nil {
		return nil, err
	}

	end := r.Offset() + int(length)
	if err := d.decodeNodeDescriptors(r, end, &n.Local); err != nil {
		return nil, err
	}
	return n, nil
}

// decodeNodeDescriptors walks the sibling sub-TLVs of one node descriptor
// block, strictly within [r.Offset(), end). Shared by all three NLRI
// decoders; the enclosing TLV's bounds were validated by the caller.
func (d *Decoder) decodeNodeDescriptors(r *reader, end int, nd *NodeDescriptor) error {
	for r.Offset() < end {
		typ, length, err := r.tlvHeader("node descriptor sub-TLV")
		if err != nil {
			return err
		}
		if r.Offset()+int(length) > end {
			return truncatedErr("node descriptor sub-TLV value", int(length), end-r.Offset())
		}

		switch typ {
		case TLVAutonomousSystem:
			if length != 4 {
				return lengthErr("autonomous system", length)
			}
			v, err := r.Uint32("autonomous system")
			if err != nil {
				return err
			}
			nd.AutonomousSystem = &v

		case TLVBGPLSIdentifier:
			if length != 4 {
				return lengthErr("bgp-ls identifier", length)
			}
			v, err := r.Uint32("bgp-ls identifier")
			if err != nil {
				return err
			}
			nd.BGPLSIdentifier = &v

		case TLVAreaID:
			if length != 4 {
				return lengthErr("area id", length)
			}
			v, err := r.Uint32("area id")
			if err != nil {
				return err
			}
			nd.AreaID = &v

		case TLVIGPRouterID:
			// The declared length alone selects the variant.
			switch length {
			case igpRouterIDISISLen:
				nd.RouterIDKind = RouterIDISIS
			case igpRouterIDISISPseudoLen:
				nd.RouterIDKind = RouterIDISISPseudo
			case igpRouterIDOSPFLen:
				nd.RouterIDKind = RouterIDOSPF
			case igpRouterIDOSPFPseudoLen:
				nd.RouterIDKind = RouterIDOSPFPseudo
			default:
				return lengthErr("igp router-id", length)
			}
			v, err := r.Bytes("igp router-id", int(length))
			if err != nil {
				return err
			}
			nd.IGPRouterID = v

		default:
			// Skip by the declared length, never assume zero.
			d.logger.Debug("skipping unknown node descriptor sub-TLV",
				zap.Uint16("type", typ),
				zap.Uint16("length", length),
			)
			if err := r.Skip("unknown sub-TLV value", int(length)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeLinkNLRI decodes one Link NLRI. Unlike the Node NLRI, the local and
// remote descriptor blocks and the link-identifying TLVs are top-level
// siblings and may arrive in any order.
func (d *Decoder) DecodeLinkNLRI(b []byte) (*LinkNLRI, error) {
	n := &LinkNLRI{}
	r := newReader(b)

	if err := decodeExtHeader(r, &n.ExtHeader); err != nil {
		return nil, err
	}

	for r.Remaining() > 0 {
		typ, length, err := r.tlvHeader("link descriptor TLV")
		if err != nil {
			return nil, err
		}
		if err := r.need("link descriptor TLV value", int(length)); err != nil {
			return nil, err
		}
		valueEnd := r.Offset() + int(length)

		switch typ {
		case TLVLocalNodeDescriptors:
			if err := d.decodeNodeDescriptors(r, valueEnd, &n.Link.Local); err != nil {
				return nil, err
			}

		case TLVRemoteNodeDescriptors:
			if err := d.decodeNodeDescriptors(r, valueEnd, &n.Link.Remote); err != nil {
				return nil, err
			}

		case TLVLinkLocalRemoteIdentifiers:
			// Legacy layout: every scalar at this level repeats a
			// discarded 4-byte mini-header before its value.
			if length < tlvHeaderLen+4 {
				return nil, lengthErr("link local/remote identifiers", length)
			}
			if _, err := miniHeader(r, "link local/remote identifiers"); err != nil {
				return nil, err
			}
			local, err := r.Uint16("local link id")
			if err != nil {
				return nil, err
			}
			remote, err := r.Uint16("remote link id")
			if err != nil {
				return nil, err
			}
			n.Link.LocalLinkID = local
			n.Link.RemoteLinkID = remote
			n.Link.HasLinkIDs = true

		case TLVIPv4InterfaceAddress:
			if length != tlvHeaderLen+4 {
				return nil, lengthErr("ipv4 interface address", length)
			}
			if _, err := miniHeader(r, "ipv4 interface address"); err != nil {
				return nil, err
			}
			addr, err := r.IPv4("ipv4 interface address")
			if err != nil {
				return nil, err
			}
			n.Link.InterfaceAddr = addr

		case TLVIPv4NeighborAddress:
			if length != tlvHeaderLen+4 {
				return nil, lengthErr("ipv4 neighbor address", length)
			}
			if _, err := miniHeader(r, "ipv4 neighbor address"); err != nil {
				return nil, err
			}
			addr, err := r.IPv4("ipv4 neighbor address")
			if err != nil {
				return nil, err
			}
			n.Link.NeighborAddr = addr

		case TLVIPv6InterfaceAddress:
			if length != tlvHeaderLen+16 {
				return nil, lengthErr("ipv6 interface address", length)
			}
			if _, err := miniHeader(r, "ipv6 interface address"); err != nil {
				return nil, err
			}
			addr, err := r.IPv6("ipv6 interface address")
			if err != nil {
				return nil, err
			}
			n.Link.InterfaceAddr = addr

		case TLVIPv6NeighborAddress:
			if length != tlvHeaderLen+16 {
				return nil, lengthErr("ipv6 neighbor address", length)
			}
			if _, err := miniHeader(r, "ipv6 neighbor address"); err != nil {
				return nil, err
			}
			addr, err := r.IPv6("ipv6 neighbor address")
			if err != nil {
				return nil, err
			}
			n.Link.NeighborAddr = addr

		case TLVMultiTopologyID:
			ids, err := d.decodeMultiTopologyIDs(r, length)
			if err != nil {
				return nil, err
			}
			n.Link.MultiTopologyIDs = ids

		default:
			d.logger.Debug("skipping unknown link descriptor TLV",
				zap.Uint16("type", typ),
				zap.Uint16("length", length),
			)
			if err := r.Skip("unknown link TLV value", int(length)); err != nil {
				return nil, err
			}
		}

		// Whatever the per-type reads consumed, the next sibling starts
		// at the declared value end.
		if r.Offset() < valueEnd {
			if err := r.Skip("link descriptor TLV padding", valueEnd-r.Offset()); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

// miniHeader consumes the discarded 4-byte inner header that the legacy
// layout repeats before every scalar value at the link/prefix descriptor
// level, returning its declared inner length.
func miniHeader(r *reader, what string) (uint16, error) {
	_, length, err := r.tlvHeader(what + " mini-header")
	return length, err
}

// decodeMultiTopologyIDs consumes the scalar mini-header, then reads
// inner_length/2 identifiers in wire order. outerLen is the enclosing
// TLV's declared value length.
func (d *Decoder) decodeMultiTopologyIDs(r *reader, outerLen uint16) ([]uint16, error) {
	if outerLen < tlvHeaderLen {
		return nil, lengthErr("multi-topology id", outerLen)
	}
	innerLen, err := miniHeader(r, "multi-topology id")
	if err != nil {
		return nil, err
	}
	if innerLen%2 != 0 || innerLen > outerLen-tlvHeaderLen {
		return nil, lengthErr("multi-topology id", innerLen)
	}
	count := int(innerLen) / 2
	ids := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		id, err := r.Uint16("multi-topology id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DecodePrefixNLRI decodes one IPv4 or IPv6 Prefix NLRI.
func (d *Decoder) DecodePrefixNLRI(b []byte, ipv6 bool) (*PrefixNLRI, error) {
	n := &PrefixNLRI{IPv6: ipv6}
	r := newReader(b)

	if err := decodeExtHeader(r, &n.ExtHeader); err != nil {
		return nil, err
	}

	maxReach := 4
	if ipv6 {
		maxReach = 16
	}

	for r.Remaining() > 0 {
		typ, length, err := r.tlvHeader("prefix descriptor TLV")
		if err != nil {
			return nil, err
		}
		if err := r.need("prefix descriptor TLV value", int(length)); err != nil {
			return nil, err
		}
		valueEnd := r.Offset() + int(length)

		switch typ {
		case TLVLocalNodeDescriptors:
			if err := d.decodeNodeDescriptors(r, valueEnd, &n.Prefix.Local); err != nil {
				return nil, err
			}

		case TLVMultiTopologyID:
			ids, err := d.decodeMultiTopologyIDs(r, length)
			if err != nil {
				return nil, err
			}
			n.Prefix.MultiTopologyIDs = ids

		case TLVOSPFRouteType:
			if length != 1 {
				return nil, lengthErr("ospf route type", length)
			}
			v, err := r.Uint8("ospf route type")
			if err != nil {
				return nil, err
			}
			n.Prefix.OSPFRouteType = v
			n.Prefix.HasOSPFRouteType = true

		case TLVIPReachabilityInformation:
			if length < 1 {
				return nil, lengthErr("ip reachability", length)
			}
			plen, err := r.Uint8("ip reachability prefix length")
			if err != nil {
				return nil, err
			}
			// The prefix-length byte denotes the value's byte count
			// directly (legacy convention, preserved bit-exact).
			if int(plen) > maxReach || int(plen) > int(length)-1 {
				return nil, lengthErr("ip reachability prefix length", uint16(plen))
			}
			v, err := r.Bytes("ip reachability value", int(plen))
			if err != nil {
				return nil, err
			}
			n.Prefix.ReachabilityPrefixLen = plen
			n.Prefix.Reachability = v

		default:
			d.logger.Debug("skipping unknown prefix descriptor TLV",
				zap.Uint16("type", typ),
				zap.Uint16("length", length),
			)
			if err := r.Skip("unknown prefix TLV value", int(length)); err != nil {
				return nil, err
			}
		}

		if r.Offset() < valueEnd {
			if err := r.Skip("prefix descriptor TLV padding", valueEnd-r.Offset()); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}
