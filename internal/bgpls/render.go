package bgpls

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// Sink receives rendered output one logical line at a time. The text sink
// joins lines into a multi-line operator listing; the log sink emits each
// line as a single log entry. Both carry the same information.
type Sink interface {
	Line(line string)
}

// TextSink writes one line per call to an io.Writer.
type TextSink struct {
	W io.Writer
}

func (s *TextSink) Line(line string) {
	fmt.Fprintln(s.W, line)
}

// LogSink emits each rendered line as a debug log entry.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Line(line string) {
	s.Logger.Debug(line)
}

// lengthClass constrains a TLV type's declared value length. Validation
// happens before dispatch so formatters only ever see well-sized values.
type lengthClass int

const (
	lenVariable lengthClass = iota
	lenFixed
	lenMultiple
	lenAddr // 4 or 16, selected by the declared length
)

type renderEntry struct {
	name   string
	class  lengthClass
	size   int
	render func(sink Sink, v []byte) uint16
}

// renderTable maps each known attribute TLV type to its formatter. Types
// missing here, and types whose declared length fails the class check,
// fall through to the catch-all hex dumper.
var renderTable = map[uint16]renderEntry{
	TLVMultiTopologyID:        {"Multi Topology ID", lenMultiple, 2, renderMultiTopology},
	TLVNodeFlagBits:           {"Node Flag Bits", lenFixed, 1, renderNodeFlagBits},
	TLVOpaqueNodeProperties:   {"Opaque Node Properties", lenVariable, 0, renderOpaqueNode},
	TLVNodeName:               {"Node Name", lenVariable, 0, renderNodeName},
	TLVISISAreaIdentifier:     {"IS-IS Area Identifier", lenVariable, 0, renderISISArea},
	TLVIPv4RouterIDLocal:      {"IPv4 Router ID of Local Node", lenFixed, 4, renderIPv4RouterIDLocal},
	TLVIPv6RouterIDLocal:      {"IPv6 Router ID of Local Node", lenFixed, 16, renderIPv6RouterIDLocal},
	TLVIPv4RouterIDRemote:     {"IPv4 Router ID of Remote Node", lenFixed, 4, renderIPv4RouterIDRemote},
	TLVIPv6RouterIDRemote:     {"IPv6 Router ID of Remote Node", lenFixed, 16, renderIPv6RouterIDRemote},
	TLVAdminGroupColor:        {"Administrative Group", lenFixed, 4, renderAdminGroup},
	TLVMaxLinkBandwidth:       {"Maximum Link Bandwidth", lenFixed, 4, renderMaxLinkBandwidth},
	TLVMaxReservableBandwidth: {"Maximum Reservable Bandwidth", lenFixed, 4, renderMaxReservableBandwidth},
	TLVUnreservedBandwidth:    {"Unreserved Bandwidth", lenFixed, 32, renderUnreservedBandwidth},
	TLVTEDefaultMetric:        {"TE Default Metric", lenFixed, 4, renderTEMetric},
	TLVLinkProtectionType:     {"Link Protection Type", lenFixed, 2, renderLinkProtection},
	TLVMPLSProtocolMask:       {"MPLS Protocol Mask", lenFixed, 1, renderMPLSMask},
	TLVIGPMetric:              {"IGP Metric", lenVariable, 0, renderIGPMetric},
	TLVSharedRiskLinkGroup:    {"Shared Risk Link Group", lenMultiple, 4, renderSRLG},
	TLVOpaqueLinkAttribute:    {"Opaque Link Attribute", lenVariable, 0, renderOpaqueLink},
	TLVLinkName:               {"Link Name", lenVariable, 0, renderLinkName},
	TLVIGPFlags:               {"IGP Flags", lenFixed, 1, renderIGPFlags},
	TLVRouteTag:               {"Route Tag", lenMultiple, 4, renderRouteTags},
	TLVExtendedTag:            {"Extended Tag", lenMultiple, 8, renderExtendedTags},
	TLVPrefixMetric:           {"Prefix Metric", lenFixed, 4, renderPrefixMetric},
	TLVOSPFForwardingAddress:  {"OSPF Forwarding Address", lenAddr, 0, renderOSPFForwardingAddr},
	TLVOpaquePrefixAttribute:  {"Opaque Prefix Attribute", lenVariable, 0, renderOpaquePrefix},
}

func (e renderEntry) lengthValid(l int) bool {
	switch e.class {
	case lenFixed:
		return l == e.size
	case lenMultiple:
		return l > 0 && l%e.size == 0
	case lenAddr:
		return l == 4 || l == 16
	default:
		return true
	}
}

// RenderAttribute walks a materialized BGP-LS attribute TLV chain and
// renders every TLV to the sink. Each formatter reports the byte count it
// consumed (header plus value) and that report is the sole advance
// mechanism. The walk never fails: unknown or mis-sized TLVs go through
// the hex dumper, and a trailing fragment too short for a header is dumped
// as-is.
func RenderAttribute(attr []byte, sink Sink) {
	off := 0
	for off < len(attr) {
		if len(attr)-off < tlvHeaderLen {
			sink.Line(fmt.Sprintf("    Trailing bytes: %s", hexBytes(attr[off:])))
			return
		}
		typ := binary.BigEndian.Uint16(attr[off:])
		length := int(binary.BigEndian.Uint16(attr[off+2:]))

		value := attr[off+tlvHeaderLen:]
		if length > len(value) {
			// Declared length overruns the blob; dump what exists and
			// stop rather than desync.
			renderUnknown(sink, typ, uint16(length), value)
			return
		}
		value = value[:length]

		var consumed uint16
		if entry, ok := renderTable[typ]; ok && entry.lengthValid(length) {
			consumed = entry.render(sink, value)
		} else {
			consumed = renderUnknown(sink, typ, uint16(length), value)
		}
		off += int(consumed)
	}
}

func tlvConsumed(v []byte) uint16 {
	return uint16(tlvHeaderLen + len(v))
}

func renderMultiTopology(sink Sink, v []byte) uint16 {
	n := len(v) / 2
	sink.Line(fmt.Sprintf("  Multi Topology ID number: %d", n))
	for i := 0; i < n; i++ {
		sink.Line(fmt.Sprintf("    ID #%d: %d", i, binary.BigEndian.Uint16(v[i*2:])))
	}
	return tlvConsumed(v)
}

func renderNodeFlagBits(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Node Flag Bits: 0x%02x", v[0]))
	return tlvConsumed(v)
}

func renderOpaqueNode(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Opaque Node Properties: %s", hexBytes(v)))
	return tlvConsumed(v)
}

func renderNodeName(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Node Name: %s", printable(v)))
	return tlvConsumed(v)
}

func renderISISArea(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IS-IS Area Identifier: %s", FormatISONet(v)))
	return tlvConsumed(v)
}

func renderIPv4RouterIDLocal(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IPv4 Router ID of local node: %s", addrString(v)))
	return tlvConsumed(v)
}

func renderIPv6RouterIDLocal(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IPv6 Router ID of local node: %s", addrString(v)))
	return tlvConsumed(v)
}

func renderIPv4RouterIDRemote(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IPv4 Router ID of remote node: %s", addrString(v)))
	return tlvConsumed(v)
}

func renderIPv6RouterIDRemote(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IPv6 Router ID of remote node: %s", addrString(v)))
	return tlvConsumed(v)
}

func renderAdminGroup(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Administrative Group: 0x%x", binary.BigEndian.Uint32(v)))
	return tlvConsumed(v)
}

func renderMaxLinkBandwidth(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Maximum Bandwidth: %g (Bytes/sec)", float32FromWire(v)))
	return tlvConsumed(v)
}

func renderMaxReservableBandwidth(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Maximum Reservable Bandwidth: %g (Bytes/sec)", float32FromWire(v)))
	return tlvConsumed(v)
}

func renderUnreservedBandwidth(sink Sink, v []byte) uint16 {
	sink.Line("    Unreserved Bandwidth:")
	for i := 0; i < 8; i += 2 {
		sink.Line(fmt.Sprintf("      [%d]: %g (Bytes/sec), [%d]: %g (Bytes/sec)",
			i, float32FromWire(v[i*4:]), i+1, float32FromWire(v[(i+1)*4:])))
	}
	return tlvConsumed(v)
}

func renderTEMetric(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Traffic Engineering Metric: %d", binary.BigEndian.Uint32(v)))
	return tlvConsumed(v)
}

func renderLinkProtection(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Link Protection Type: 0x%02x", binary.BigEndian.Uint16(v)))
	return tlvConsumed(v)
}

func renderMPLSMask(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    MPLS Protocol Mask: 0x%02x", v[0]))
	return tlvConsumed(v)
}

func renderIGPMetric(sink Sink, v []byte) uint16 {
	var metric uint64
	for _, b := range v {
		metric = metric<<8 | uint64(b)
	}
	sink.Line(fmt.Sprintf("    IGP Metric: %d", metric))
	return tlvConsumed(v)
}

func renderSRLG(sink Sink, v []byte) uint16 {
	n := len(v) / 4
	sink.Line(fmt.Sprintf("  Shared Risk Link Group Number: %d", n))
	for i := 0; i < n; i++ {
		sink.Line(fmt.Sprintf("    Value #%d: %d", i, binary.BigEndian.Uint32(v[i*4:])))
	}
	return tlvConsumed(v)
}

func renderOpaqueLink(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Opaque Link Attribute: %s", hexBytes(v)))
	return tlvConsumed(v)
}

func renderLinkName(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Link Name: %s", printable(v)))
	return tlvConsumed(v)
}

func renderIGPFlags(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    IGP Flags: 0x%02x", v[0]))
	return tlvConsumed(v)
}

func renderRouteTags(sink Sink, v []byte) uint16 {
	n := len(v) / 4
	sink.Line(fmt.Sprintf("  Route Tag(s): %d", n))
	for i := 0; i < n; i++ {
		sink.Line(fmt.Sprintf("    Value #%d: 0x%x", i, binary.BigEndian.Uint32(v[i*4:])))
	}
	return tlvConsumed(v)
}

func renderExtendedTags(sink Sink, v []byte) uint16 {
	n := len(v) / 8
	sink.Line(fmt.Sprintf("  Extended Route Tag(s): %d", n))
	for i := 0; i < n; i++ {
		sink.Line(fmt.Sprintf("    Value #%d: 0x%x", i, binary.BigEndian.Uint64(v[i*8:])))
	}
	return tlvConsumed(v)
}

func renderPrefixMetric(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Prefix Metric: %d", binary.BigEndian.Uint32(v)))
	return tlvConsumed(v)
}

func renderOSPFForwardingAddr(sink Sink, v []byte) uint16 {
	// Declared length selects the family.
	sink.Line(fmt.Sprintf("    OSPF Forwarding Address: %s", addrString(v)))
	return tlvConsumed(v)
}

func renderOpaquePrefix(sink Sink, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Opaque Prefix Attribute: %s", hexBytes(v)))
	return tlvConsumed(v)
}

// renderUnknown is the catch-all for unrecognized or mis-sized TLVs. It
// dumps the value in fixed-width 8-byte rows and always reports header
// plus declared length consumed, so the walk keeps moving for any input.
func renderUnknown(sink Sink, typ, length uint16, v []byte) uint16 {
	sink.Line(fmt.Sprintf("    Unknown TLV: [type(%#x), length(%#x)]", typ, length))
	for i := 0; i < len(v); i += 8 {
		end := i + 8
		if end > len(v) {
			end = len(v)
		}
		sink.Line(fmt.Sprintf("      Dump: [%02x] %s", i, hexBytes(v[i:end])))
	}
	return tlvHeaderLen + length
}

func float32FromWire(v []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(v))
}

func addrString(v []byte) string {
	addr, ok := netip.AddrFromSlice(v)
	if !ok {
		return hexBytes(v)
	}
	return addr.String()
}

func hexBytes(v []byte) string {
	if len(v) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, c := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

// printable renders a name TLV value, falling back to hex when the bytes
// are not clean ASCII.
func printable(v []byte) string {
	for _, c := range v {
		if c < 0x20 || c > 0x7e {
			return hexBytes(v)
		}
	}
	return string(v)
}

// RenderNLRI renders a decoded NLRI's descriptors in the same listing
// style as RenderAttribute.
func RenderNLRI(n NLRI, sink Sink) {
	hdr := n.Header()
	sink.Line(fmt.Sprintf("%s NLRI: protocol %s, identifier %d",
		NLRITypeName(n.Kind()), ProtoIDName(hdr.ProtoID), hdr.Identifier))

	switch v := n.(type) {
	case *NodeNLRI:
		renderNodeDescriptor(sink, "Local", &v.Local)
	case *LinkNLRI:
		renderNodeDescriptor(sink, "Local", &v.Link.Local)
		renderNodeDescriptor(sink, "Remote", &v.Link.Remote)
		if v.Link.HasLinkIDs {
			sink.Line(fmt.Sprintf("  Link Identifiers: local %d, remote %d",
				v.Link.LocalLinkID, v.Link.RemoteLinkID))
		}
		if v.Link.InterfaceAddr.IsValid() {
			sink.Line(fmt.Sprintf("  Interface Address: %s", v.Link.InterfaceAddr))
		}
		if v.Link.NeighborAddr.IsValid() {
			sink.Line(fmt.Sprintf("  Neighbor Address: %s", v.Link.NeighborAddr))
		}
		renderMTIDs(sink, v.Link.MultiTopologyIDs)
	case *PrefixNLRI:
		renderNodeDescriptor(sink, "Local", &v.Prefix.Local)
		renderMTIDs(sink, v.Prefix.MultiTopologyIDs)
		if v.Prefix.HasOSPFRouteType {
			sink.Line(fmt.Sprintf("  OSPF Route Type: %d", v.Prefix.OSPFRouteType))
		}
		if v.Prefix.Reachability != nil {
			sink.Line(fmt.Sprintf("  IP Reachability: len %d, value %s",
				v.Prefix.ReachabilityPrefixLen, hexBytes(v.Prefix.Reachability)))
		}
	}
}

func renderNodeDescriptor(sink Sink, role string, nd *NodeDescriptor) {
	sink.Line(fmt.Sprintf("  %s Node Descriptors:", role))
	if nd.AutonomousSystem != nil {
		sink.Line(fmt.Sprintf("    Autonomous System: %d", *nd.AutonomousSystem))
	}
	if nd.BGPLSIdentifier != nil {
		sink.Line(fmt.Sprintf("    BGP-LS Identifier: %d", *nd.BGPLSIdentifier))
	}
	if nd.AreaID != nil {
		sink.Line(fmt.Sprintf("    Area ID: %d", *nd.AreaID))
	}
	if nd.IGPRouterID != nil {
		switch nd.RouterIDKind {
		case RouterIDISIS, RouterIDISISPseudo:
			sink.Line(fmt.Sprintf("    IGP Router ID (%s): %s",
				nd.RouterIDKind, FormatSystemID(nd.IGPRouterID)))
		default:
			sink.Line(fmt.Sprintf("    IGP Router ID (%s): %s",
				nd.RouterIDKind, hexBytes(nd.IGPRouterID)))
		}
	}
}

func renderMTIDs(sink Sink, ids []uint16) {
	if len(ids) == 0 {
		return
	}
	sink.Line(fmt.Sprintf("  Multi Topology ID number: %d", len(ids)))
	for i, id := range ids {
		sink.Line(fmt.Sprintf("    ID #%d: %d", i, id))
	}
}
