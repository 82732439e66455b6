package bgpls

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// lineSink records rendered lines for inspection.
type lineSink struct {
	lines []string
}

func (s *lineSink) Line(line string) {
	s.lines = append(s.lines, line)
}

func (s *lineSink) joined() string {
	return strings.Join(s.lines, "\n")
}

func TestRenderAttribute_KnownTypes(t *testing.T) {
	attr := tlv(TLVNodeName, []byte("core1.fra"))
	attr = append(attr, tlv(TLVAdminGroupColor, u32be(0x0A))...)
	attr = append(attr, tlv(TLVTEDefaultMetric, u32be(1500))...)
	attr = append(attr, tlv(TLVIGPMetric, []byte{0x00, 0x00, 0x0A})...)
	attr = append(attr, tlv(TLVRouteTag, append(u32be(100), u32be(200)...))...)

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	out := sink.joined()
	for _, want := range []string{
		"Node Name: core1.fra",
		"Administrative Group: 0xa",
		"Traffic Engineering Metric: 1500",
		"IGP Metric: 10",
		"Route Tag(s): 2",
		"Value #0: 0x64",
		"Value #1: 0xc8",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Unknown TLV") {
		t.Errorf("no TLV should fall through to the dumper:\n%s", out)
	}
}

func TestRenderAttribute_Bandwidth(t *testing.T) {
	// 1.25e6 bytes/sec as IEEE-754 single.
	attr := tlv(TLVMaxLinkBandwidth, u32be(0x49989680))

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	if len(sink.lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(sink.lines))
	}
	if !strings.Contains(sink.lines[0], "Maximum Bandwidth: 1.25e+06") {
		t.Errorf("unexpected bandwidth line: %s", sink.lines[0])
	}
}

func TestRenderAttribute_UnknownType(t *testing.T) {
	v := make([]byte, 20)
	for i := range v {
		v[i] = byte(i)
	}
	attr := tlv(0x0999, v)

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	// Header line plus ceil(20/8) = 3 dump rows.
	if len(sink.lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[0], "Unknown TLV: [type(0x999), length(0x14)]") {
		t.Errorf("unexpected header line: %s", sink.lines[0])
	}
	if !strings.Contains(sink.lines[1], "Dump: [00]") ||
		!strings.Contains(sink.lines[3], "Dump: [10]") {
		t.Errorf("unexpected dump rows: %v", sink.lines[1:])
	}
}

func TestRenderAttribute_MisSizedKnownType(t *testing.T) {
	// Administrative Group requires exactly 4 bytes; 3 falls through to
	// the dumper instead of reading a short word.
	attr := tlv(TLVAdminGroupColor, []byte{1, 2, 3})

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	if !strings.Contains(sink.joined(), "Unknown TLV") {
		t.Errorf("mis-sized TLV must be dumped:\n%s", sink.joined())
	}
}

func TestRenderAttribute_DeclaredLengthOverrun(t *testing.T) {
	// A TLV declaring more bytes than the blob holds dumps the remainder
	// and stops instead of desyncing.
	attr := make([]byte, 6)
	binary.BigEndian.PutUint16(attr[0:2], TLVNodeName)
	binary.BigEndian.PutUint16(attr[2:4], 40)
	attr[4], attr[5] = 'h', 'i'

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	out := sink.joined()
	if !strings.Contains(out, "Unknown TLV") {
		t.Errorf("overrunning TLV must be dumped:\n%s", out)
	}
}

func TestRenderAttribute_TrailingFragment(t *testing.T) {
	attr := append(tlv(TLVIGPFlags, []byte{0x80}), 0xAB, 0xCD)

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	out := sink.joined()
	if !strings.Contains(out, "IGP Flags: 0x80") {
		t.Errorf("missing flags line:\n%s", out)
	}
	if !strings.Contains(out, "Trailing bytes: ab cd") {
		t.Errorf("missing trailing bytes line:\n%s", out)
	}
}

func TestRenderAttribute_WalkCoversEveryTLV(t *testing.T) {
	// Mix known, unknown and mis-sized TLVs; the walk must visit all of
	// them in order, advancing by header+declared length each time.
	attr := tlv(TLVNodeFlagBits, []byte{0x01})
	attr = append(attr, tlv(0x2000, []byte{1, 2, 3, 4, 5})...)
	attr = append(attr, tlv(TLVPrefixMetric, u32be(20))...)

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	out := sink.joined()
	flagIdx := strings.Index(out, "Node Flag Bits")
	unknownIdx := strings.Index(out, "Unknown TLV")
	metricIdx := strings.Index(out, "Prefix Metric: 20")
	if flagIdx < 0 || unknownIdx < 0 || metricIdx < 0 {
		t.Fatalf("missing lines:\n%s", out)
	}
	if !(flagIdx < unknownIdx && unknownIdx < metricIdx) {
		t.Errorf("TLVs rendered out of order:\n%s", out)
	}
}

func TestRenderAttribute_UnreservedBandwidth(t *testing.T) {
	v := make([]byte, 32)
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(v[i*4:], 0x49989680)
	}
	attr := tlv(TLVUnreservedBandwidth, v)

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	// Header line plus four priority pair rows.
	if len(sink.lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[1], "[0]:") || !strings.Contains(sink.lines[4], "[7]:") {
		t.Errorf("unexpected priority rows: %v", sink.lines[1:])
	}
}

func TestRenderAttribute_NonASCIIName(t *testing.T) {
	attr := tlv(TLVLinkName, []byte{0xFF, 0x41})

	sink := &lineSink{}
	RenderAttribute(attr, sink)

	if !strings.Contains(sink.joined(), "Link Name: ff 41") {
		t.Errorf("non-ascii name must fall back to hex:\n%s", sink.joined())
	}
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	sink := &TextSink{W: &buf}
	sink.Line("one")
	sink.Line("two")

	if buf.String() != "one\ntwo\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRenderNLRI_Link(t *testing.T) {
	as := uint32(64496)
	n := &LinkNLRI{
		ExtHeader: ExtHeader{ProtoID: ProtoISISL2, Identifier: 5},
		Link: LinkDescriptor{
			Local: NodeDescriptor{
				AutonomousSystem: &as,
				IGPRouterID:      []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01},
				RouterIDKind:     RouterIDISIS,
			},
			Remote: NodeDescriptor{
				IGPRouterID:  []byte{192, 0, 2, 1},
				RouterIDKind: RouterIDOSPF,
			},
			LocalLinkID:  17,
			RemoteLinkID: 34,
			HasLinkIDs:   true,
		},
	}

	sink := &lineSink{}
	RenderNLRI(n, sink)

	out := sink.joined()
	for _, want := range []string{
		"Link NLRI: protocol IS-IS Level 2, identifier 5",
		"Local Node Descriptors:",
		"Autonomous System: 64496",
		"IGP Router ID (isis): 1921.6800.1001",
		"Remote Node Descriptors:",
		"IGP Router ID (ospf): c0 00 02 01",
		"Link Identifiers: local 17, remote 34",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
