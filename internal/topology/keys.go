package topology

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
)

// NodeKey builds the stable identity of a node within one routing universe
// (protocol + identifier). Descriptor sub-TLVs that were absent on the wire
// are absent from the key, so two advertisements of the same node collapse
// onto one row only when their descriptors match exactly.
func NodeKey(hdr bgpls.ExtHeader, nd *bgpls.NodeDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "p%d:i%d", hdr.ProtoID, hdr.Identifier)
	if nd.AutonomousSystem != nil {
		fmt.Fprintf(&b, ":as%d", *nd.AutonomousSystem)
	}
	if nd.BGPLSIdentifier != nil {
		fmt.Fprintf(&b, ":ls%d", *nd.BGPLSIdentifier)
	}
	if nd.AreaID != nil {
		fmt.Fprintf(&b, ":ar%d", *nd.AreaID)
	}
	if nd.IGPRouterID != nil {
		fmt.Fprintf(&b, ":id%s", hex.EncodeToString(nd.IGPRouterID))
	}
	return b.String()
}

// LinkKey identifies one unidirectional link: both endpoint node keys plus
// every link-identifying descriptor present on the wire.
func LinkKey(hdr bgpls.ExtHeader, ld *bgpls.LinkDescriptor) string {
	var b strings.Builder
	b.WriteString(NodeKey(hdr, &ld.Local))
	b.WriteString("->")
	b.WriteString(NodeKey(hdr, &ld.Remote))
	if ld.HasLinkIDs {
		fmt.Fprintf(&b, ":lid%d-%d", ld.LocalLinkID, ld.RemoteLinkID)
	}
	if ld.InterfaceAddr.IsValid() {
		fmt.Fprintf(&b, ":if%s", ld.InterfaceAddr)
	}
	if ld.NeighborAddr.IsValid() {
		fmt.Fprintf(&b, ":nb%s", ld.NeighborAddr)
	}
	for _, id := range ld.MultiTopologyIDs {
		fmt.Fprintf(&b, ":mt%d", id)
	}
	return b.String()
}

// PrefixKey identifies one advertised prefix: the local node plus the raw
// reachability value and the qualifying descriptors.
func PrefixKey(hdr bgpls.ExtHeader, pd *bgpls.PrefixDescriptor, ipv6 bool) string {
	var b strings.Builder
	b.WriteString(NodeKey(hdr, &pd.Local))
	afi := 4
	if ipv6 {
		afi = 6
	}
	fmt.Fprintf(&b, ":v%d", afi)
	if pd.HasOSPFRouteType {
		fmt.Fprintf(&b, ":rt%d", pd.OSPFRouteType)
	}
	for _, id := range pd.MultiTopologyIDs {
		fmt.Fprintf(&b, ":mt%d", id)
	}
	fmt.Fprintf(&b, ":px%d-%s", pd.ReachabilityPrefixLen, hex.EncodeToString(pd.Reachability))
	return b.String()
}

// EventKey returns the identity key for any decoded NLRI.
func EventKey(n bgpls.NLRI) string {
	switch v := n.(type) {
	case *bgpls.NodeNLRI:
		return NodeKey(v.ExtHeader, &v.Local)
	case *bgpls.LinkNLRI:
		return LinkKey(v.ExtHeader, &v.Link)
	case *bgpls.PrefixNLRI:
		return PrefixKey(v.ExtHeader, &v.Prefix, v.IPv6)
	default:
		return ""
	}
}
