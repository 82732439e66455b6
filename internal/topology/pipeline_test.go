package topology

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/archive"
	"github.com/route-beacon/linkstate-ingester/internal/bgp"
	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
	"github.com/route-beacon/linkstate-ingester/internal/bmp"
)

// --- Test helpers for building OpenBMP / BMP / BGP-LS frames ---

func lsTLV(typ uint16, value []byte) []byte {
	out := make([]byte, 4+len(value))
	binary.BigEndian.PutUint16(out[0:2], typ)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	copy(out[4:], value)
	return out
}

func u32be(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

// lsNLRIValue builds the value of one Link-State NLRI: proto_id + identifier + TLVs.
func lsNLRIValue(proto uint8, ident uint64, tlvs ...[]byte) []byte {
	out := make([]byte, 9)
	out[0] = proto
	binary.BigEndian.PutUint64(out[1:9], ident)
	for _, t := range tlvs {
		out = append(out, t...)
	}
	return out
}

// lsNLRIItem frames one NLRI with its type and length.
func lsNLRIItem(nlriType uint16, value []byte) []byte {
	out := make([]byte, 4+len(value))
	binary.BigEndian.PutUint16(out[0:2], nlriType)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	copy(out[4:], value)
	return out
}

func nodeDescriptors(typ uint16, as uint32, sysID []byte) []byte {
	inner := append(lsTLV(bgpls.TLVAutonomousSystem, u32be(as)), lsTLV(bgpls.TLVIGPRouterID, sysID)...)
	return lsTLV(typ, inner)
}

func buildMPReach(items ...[]byte) []byte {
	out := make([]byte, 0, 64)
	out = binary.BigEndian.AppendUint16(out, bgp.AFILinkState)
	out = append(out, bgp.SAFILinkState)
	out = append(out, 4)                  // NH len
	out = append(out, 192, 0, 2, 1)      // next hop
	out = append(out, 0)                  // SNPA count
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func buildMPUnreach(items ...[]byte) []byte {
	out := make([]byte, 0, 32)
	out = binary.BigEndian.AppendUint16(out, bgp.AFILinkState)
	out = append(out, bgp.SAFILinkState)
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func buildPathAttr(flags byte, typeCode byte, data []byte) []byte {
	attr := make([]byte, 3+len(data))
	attr[0] = flags
	attr[1] = typeCode
	attr[2] = byte(len(data))
	copy(attr[3:], data)
	return attr
}

func buildBGPUpdate(withdrawn []byte, pathAttrs []byte) []byte {
	bodyLen := 2 + len(withdrawn) + 2 + len(pathAttrs)
	totalLen := 19 + bodyLen

	msg := make([]byte, totalLen)
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(totalLen))
	msg[18] = bgp.BGPMsgTypeUpdate

	offset := 19
	binary.BigEndian.PutUint16(msg[offset:offset+2], uint16(len(withdrawn)))
	offset += 2
	copy(msg[offset:], withdrawn)
	offset += len(withdrawn)

	binary.BigEndian.PutUint16(msg[offset:offset+2], uint16(len(pathAttrs)))
	offset += 2
	copy(msg[offset:], pathAttrs)
	return msg
}

func buildPerPeerHeader(peerAddr [4]byte) []byte {
	hdr := make([]byte, bmp.PerPeerHeaderSize)
	copy(hdr[22:26], peerAddr[:])
	return hdr
}

func buildBMPRouteMonitoring(peerAddr [4]byte, bgpUpdate []byte) []byte {
	pph := buildPerPeerHeader(peerAddr)
	msgLen := bmp.CommonHeaderSize + len(pph) + len(bgpUpdate)
	msg := make([]byte, msgLen)
	msg[0] = 3
	binary.BigEndian.PutUint32(msg[1:5], uint32(msgLen))
	msg[5] = bmp.MsgTypeRouteMonitoring
	copy(msg[bmp.CommonHeaderSize:], pph)
	copy(msg[bmp.CommonHeaderSize+len(pph):], bgpUpdate)
	return msg
}

func buildBMPPeerDown(peerAddr [4]byte) []byte {
	pph := buildPerPeerHeader(peerAddr)
	msgLen := bmp.CommonHeaderSize + len(pph) + 1
	msg := make([]byte, msgLen)
	msg[0] = 3
	binary.BigEndian.PutUint32(msg[1:5], uint32(msgLen))
	msg[5] = bmp.MsgTypePeerDown
	copy(msg[bmp.CommonHeaderSize:], pph)
	msg[bmp.CommonHeaderSize+len(pph)] = 2 // reason = local system closed
	return msg
}

func wrapOpenBMP(bmpMsg []byte) []byte {
	frame := make([]byte, bmp.OpenBMPHeaderSize+len(bmpMsg))
	binary.BigEndian.PutUint16(frame[0:2], 2)
	binary.BigEndian.PutUint32(frame[6:10], uint32(len(bmpMsg)))
	copy(frame[bmp.OpenBMPHeaderSize:], bmpMsg)
	return frame
}

func newTestPipeline(withArchive bool) *Pipeline {
	var aw *archive.Writer
	if withArchive {
		aw = archive.NewWriter(nil, zap.NewNop(), false)
	}
	return NewPipeline(NewWriter(nil, zap.NewNop()), aw, nil, 1000, 200, 16*1024*1024, zap.NewNop())
}

var testSysID = []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01}

func nodeAnnouncementFrame() ([]byte, []byte, []byte) {
	nlri := lsNLRIItem(bgpls.NLRITypeNode,
		lsNLRIValue(bgpls.ProtoISISL2, 0,
			nodeDescriptors(bgpls.TLVLocalNodeDescriptors, 65001, testSysID)))

	lsAttr := lsTLV(bgpls.TLVNodeName, []byte("core1"))

	mpReach := buildPathAttr(0x80, bgp.AttrTypeMPReachNLRI, buildMPReach(nlri))
	attr29 := buildPathAttr(0xC0, bgp.AttrTypeLinkState, lsAttr)
	pathAttrs := append(mpReach, attr29...)

	update := buildBGPUpdate(nil, pathAttrs)
	bmpMsg := buildBMPRouteMonitoring([4]byte{10, 0, 0, 1}, update)
	return wrapOpenBMP(bmpMsg), bmpMsg, lsAttr
}

// --- processRecord tests ---

func TestProcessRecord_NodeAnnouncement(t *testing.T) {
	p := newTestPipeline(true)

	frame, bmpMsg, lsAttr := nodeAnnouncementFrame()
	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, peerDowns := p.processRecord(context.Background(), rec)

	if len(peerDowns) != 0 {
		t.Fatalf("expected no peer downs, got %v", peerDowns)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.Action != "A" {
		t.Errorf("expected action 'A', got %q", e.Action)
	}
	if e.RouterID != "10.0.0.1" {
		t.Errorf("expected router_id '10.0.0.1', got %q", e.RouterID)
	}
	if !strings.Contains(e.Key, "as65001") {
		t.Errorf("expected AS in key, got %q", e.Key)
	}
	if _, ok := e.NLRI.(*bgpls.NodeNLRI); !ok {
		t.Errorf("expected NodeNLRI, got %T", e.NLRI)
	}
	if !bytes.Equal(e.Attr, lsAttr) {
		t.Errorf("expected raw link-state attribute %x, got %x", lsAttr, e.Attr)
	}

	if len(rows) != 1 {
		t.Fatalf("expected 1 archive row, got %d", len(rows))
	}
	r := rows[0]
	if len(r.EventID) != 32 {
		t.Errorf("expected 32-byte event id, got %d bytes", len(r.EventID))
	}
	if r.NLRIType != bgpls.NLRITypeNode {
		t.Errorf("expected node NLRI type, got %d", r.NLRIType)
	}
	if r.Key != e.Key {
		t.Errorf("archive key %q differs from event key %q", r.Key, e.Key)
	}
	if !bytes.Equal(r.BMPRaw, bmpMsg) {
		t.Error("expected archive row to carry the BMP message bytes")
	}
	if r.Topic != "gobmp.raw" {
		t.Errorf("expected topic 'gobmp.raw', got %q", r.Topic)
	}
}

func TestProcessRecord_SiblingEventsDistinctIDs(t *testing.T) {
	p := newTestPipeline(true)

	// One UPDATE announcing two nodes: both events share the BMP message
	// but must archive under distinct event ids, or the partitioned
	// table's primary key would swallow the second row.
	nlri1 := lsNLRIItem(bgpls.NLRITypeNode,
		lsNLRIValue(bgpls.ProtoISISL2, 0,
			nodeDescriptors(bgpls.TLVLocalNodeDescriptors, 65001, testSysID)))
	nlri2 := lsNLRIItem(bgpls.NLRITypeNode,
		lsNLRIValue(bgpls.ProtoISISL2, 0,
			nodeDescriptors(bgpls.TLVLocalNodeDescriptors, 65002, testSysID)))
	mpReach := buildPathAttr(0x80, bgp.AttrTypeMPReachNLRI, buildMPReach(nlri1, nlri2))

	update := buildBGPUpdate(nil, mpReach)
	frame := wrapOpenBMP(buildBMPRouteMonitoring([4]byte{10, 0, 0, 1}, update))

	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	_, rows, _ := p.processRecord(context.Background(), rec)

	if len(rows) != 2 {
		t.Fatalf("expected 2 archive rows, got %d", len(rows))
	}
	if bytes.Equal(rows[0].EventID, rows[1].EventID) {
		t.Error("sibling events from one BMP message share an event id")
	}
	if rows[0].Key == rows[1].Key {
		t.Errorf("expected distinct element keys, both %q", rows[0].Key)
	}
}

func TestProcessRecord_Withdrawal(t *testing.T) {
	p := newTestPipeline(true)

	nlri := lsNLRIItem(bgpls.NLRITypeNode,
		lsNLRIValue(bgpls.ProtoISISL2, 0,
			nodeDescriptors(bgpls.TLVLocalNodeDescriptors, 65001, testSysID)))
	mpUnreach := buildPathAttr(0x80, bgp.AttrTypeMPUnreachNLRI, buildMPUnreach(nlri))

	update := buildBGPUpdate(nil, mpUnreach)
	frame := wrapOpenBMP(buildBMPRouteMonitoring([4]byte{10, 0, 0, 1}, update))

	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, _ := p.processRecord(context.Background(), rec)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != "D" {
		t.Errorf("expected action 'D', got %q", events[0].Action)
	}
	if events[0].Attr != nil {
		t.Errorf("expected no attribute on withdrawal, got %x", events[0].Attr)
	}
	if len(rows) != 1 || rows[0].Action != "D" {
		t.Fatalf("expected 1 archive row with action 'D', got %d", len(rows))
	}
}

func TestProcessRecord_ArchiveDisabled(t *testing.T) {
	p := newTestPipeline(false)

	frame, _, _ := nodeAnnouncementFrame()
	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, _ := p.processRecord(context.Background(), rec)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(rows) != 0 {
		t.Fatalf("expected no archive rows with archiving disabled, got %d", len(rows))
	}
}

func TestProcessRecord_PeerDown(t *testing.T) {
	p := newTestPipeline(true)

	frame := wrapOpenBMP(buildBMPPeerDown([4]byte{10, 0, 0, 9}))
	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, peerDowns := p.processRecord(context.Background(), rec)

	if len(events) != 0 || len(rows) != 0 {
		t.Fatalf("expected no events for peer down, got %d events %d rows", len(events), len(rows))
	}
	if len(peerDowns) != 1 || peerDowns[0] != "10.0.0.9" {
		t.Fatalf("expected peer down for 10.0.0.9, got %v", peerDowns)
	}
}

func TestProcessRecord_EORSkipped(t *testing.T) {
	p := newTestPipeline(true)

	// An empty UPDATE is the link-state End-of-RIB marker.
	update := buildBGPUpdate(nil, nil)
	frame := wrapOpenBMP(buildBMPRouteMonitoring([4]byte{10, 0, 0, 1}, update))

	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, peerDowns := p.processRecord(context.Background(), rec)

	if len(events) != 0 || len(rows) != 0 || len(peerDowns) != 0 {
		t.Errorf("expected nothing for EOR, got %d events %d rows %v", len(events), len(rows), peerDowns)
	}
}

func TestProcessRecord_OtherFamilyIgnored(t *testing.T) {
	p := newTestPipeline(true)

	// IPv6 unicast MP_REACH must not yield link-state events.
	mpReach := make([]byte, 0, 32)
	mpReach = append(mpReach, 0, 2, 1, 16)
	mpReach = append(mpReach, make([]byte, 16)...) // next hop
	mpReach = append(mpReach, 0, 32, 0x20, 0x01, 0x0d, 0xb8)
	attr := buildPathAttr(0x80, bgp.AttrTypeMPReachNLRI, mpReach)

	update := buildBGPUpdate(nil, attr)
	frame := wrapOpenBMP(buildBMPRouteMonitoring([4]byte{10, 0, 0, 1}, update))

	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, _ := p.processRecord(context.Background(), rec)

	if len(events) != 0 || len(rows) != 0 {
		t.Errorf("expected no events for IPv6 unicast, got %d events %d rows", len(events), len(rows))
	}
}

func TestProcessRecord_MalformedOpenBMP(t *testing.T) {
	p := newTestPipeline(true)

	rec := &kgo.Record{Value: []byte{0, 2, 0, 0, 0}, Topic: "gobmp.raw"}
	events, rows, peerDowns := p.processRecord(context.Background(), rec)

	if len(events) != 0 || len(rows) != 0 || len(peerDowns) != 0 {
		t.Error("expected nothing for a truncated frame")
	}
}

func TestProcessRecord_OversizedPayload(t *testing.T) {
	p := NewPipeline(NewWriter(nil, zap.NewNop()), nil, nil, 1000, 200, 100, zap.NewNop())

	frame, _, _ := nodeAnnouncementFrame()
	// Pad the BMP payload past the 100-byte cap.
	big := wrapOpenBMP(append(frame[bmp.OpenBMPHeaderSize:], make([]byte, 200)...))

	rec := &kgo.Record{Value: big, Topic: "gobmp.raw"}
	events, _, _ := p.processRecord(context.Background(), rec)

	if len(events) != 0 {
		t.Errorf("expected no events for oversized payload, got %d", len(events))
	}
}

func TestProcessRecord_ConcatenatedMessages(t *testing.T) {
	p := newTestPipeline(true)

	_, announceMsg, _ := nodeAnnouncementFrame()
	downMsg := buildBMPPeerDown([4]byte{10, 0, 0, 9})
	frame := wrapOpenBMP(append(append([]byte{}, announceMsg...), downMsg...))

	rec := &kgo.Record{Value: frame, Topic: "gobmp.raw"}
	events, rows, peerDowns := p.processRecord(context.Background(), rec)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(peerDowns) != 1 || peerDowns[0] != "10.0.0.9" {
		t.Fatalf("expected peer down for 10.0.0.9, got %v", peerDowns)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 archive row, got %d", len(rows))
	}
	// The archived bytes cover only the announcing BMP message.
	if !bytes.Equal(rows[0].BMPRaw, announceMsg) {
		t.Error("expected archive row to carry the first BMP message only")
	}
}
