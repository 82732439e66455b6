package topology

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
)

func u32p(v uint32) *uint32 { return &v }

func TestNodeKey_Deterministic(t *testing.T) {
	hdr := bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2, Identifier: 0}
	nd := &bgpls.NodeDescriptor{
		AutonomousSystem: u32p(65001),
		IGPRouterID:      []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01},
		RouterIDKind:     bgpls.RouterIDISIS,
	}

	k1 := NodeKey(hdr, nd)
	k2 := NodeKey(hdr, nd)
	if k1 != k2 {
		t.Fatalf("key not deterministic: %q vs %q", k1, k2)
	}
	if !strings.Contains(k1, "as65001") {
		t.Errorf("expected AS in key, got %q", k1)
	}
	if !strings.Contains(k1, "192168001001") {
		t.Errorf("expected hex router id in key, got %q", k1)
	}
}

func TestNodeKey_DistinguishesRoutingUniverse(t *testing.T) {
	nd := &bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)}

	l1 := NodeKey(bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL1}, nd)
	l2 := NodeKey(bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2}, nd)
	if l1 == l2 {
		t.Errorf("expected distinct keys for distinct protocols, both %q", l1)
	}

	i0 := NodeKey(bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2, Identifier: 0}, nd)
	i1 := NodeKey(bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2, Identifier: 1}, nd)
	if i0 == i1 {
		t.Errorf("expected distinct keys for distinct identifiers, both %q", i0)
	}
}

func TestNodeKey_AbsentFieldsOmitted(t *testing.T) {
	hdr := bgpls.ExtHeader{ProtoID: bgpls.ProtoOSPFv2}

	bare := NodeKey(hdr, &bgpls.NodeDescriptor{})
	if strings.Contains(bare, "as") || strings.Contains(bare, ":id") {
		t.Errorf("expected no descriptor fields in bare key, got %q", bare)
	}

	withArea := NodeKey(hdr, &bgpls.NodeDescriptor{AreaID: u32p(0)})
	if bare == withArea {
		t.Error("expected area 0 to differ from absent area")
	}
}

func TestLinkKey_CoversDescriptors(t *testing.T) {
	hdr := bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2}
	ld := &bgpls.LinkDescriptor{
		Local:  bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)},
		Remote: bgpls.NodeDescriptor{AutonomousSystem: u32p(65002)},

		LocalLinkID:  17,
		RemoteLinkID: 34,
		HasLinkIDs:   true,

		InterfaceAddr:    netip.MustParseAddr("10.0.0.1"),
		NeighborAddr:     netip.MustParseAddr("10.0.0.2"),
		MultiTopologyIDs: []uint16{0, 2},
	}

	key := LinkKey(hdr, ld)
	for _, want := range []string{"as65001", "as65002", "lid17-34", "if10.0.0.1", "nb10.0.0.2", "mt0", "mt2"} {
		if !strings.Contains(key, want) {
			t.Errorf("expected %q in link key %q", want, key)
		}
	}

	// Reversed endpoints describe the other direction of the link.
	rev := &bgpls.LinkDescriptor{Local: ld.Remote, Remote: ld.Local}
	if LinkKey(hdr, rev) == LinkKey(hdr, &bgpls.LinkDescriptor{Local: ld.Local, Remote: ld.Remote}) {
		t.Error("expected direction to be part of the key")
	}
}

func TestPrefixKey_FamilyAndReachability(t *testing.T) {
	hdr := bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2}
	pd := &bgpls.PrefixDescriptor{
		Local:                 bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)},
		ReachabilityPrefixLen: 3,
		Reachability:          []byte{10, 1, 2},
	}

	v4 := PrefixKey(hdr, pd, false)
	v6 := PrefixKey(hdr, pd, true)
	if v4 == v6 {
		t.Errorf("expected address family in key, both %q", v4)
	}
	if !strings.Contains(v4, "px3-0a0102") {
		t.Errorf("expected reachability bytes in key, got %q", v4)
	}
}

func TestEventKey_Dispatch(t *testing.T) {
	hdr := bgpls.ExtHeader{ProtoID: bgpls.ProtoISISL2}

	node := &bgpls.NodeNLRI{ExtHeader: hdr, Local: bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)}}
	link := &bgpls.LinkNLRI{ExtHeader: hdr, Link: bgpls.LinkDescriptor{
		Local:  bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)},
		Remote: bgpls.NodeDescriptor{AutonomousSystem: u32p(65002)},
	}}
	prefix := &bgpls.PrefixNLRI{ExtHeader: hdr, Prefix: bgpls.PrefixDescriptor{
		Local:                 bgpls.NodeDescriptor{AutonomousSystem: u32p(65001)},
		ReachabilityPrefixLen: 1,
		Reachability:          []byte{10},
	}}

	keys := map[string]string{
		"node":   EventKey(node),
		"link":   EventKey(link),
		"prefix": EventKey(prefix),
	}
	seen := map[string]bool{}
	for kind, key := range keys {
		if key == "" {
			t.Errorf("%s: empty key", kind)
		}
		if seen[key] {
			t.Errorf("%s: key %q collides", kind, key)
		}
		seen[key] = true
	}
}
