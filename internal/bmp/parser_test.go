package bmp

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildBMPRouteMonitoring builds a minimal BMP Route Monitoring message with the given peer type.
func buildBMPRouteMonitoring(peerType uint8, bgpPayload []byte) []byte {
	// BMP Common Header: version(1) + msg_length(4) + msg_type(1) = 6 bytes
	// Per-peer header: 42 bytes
	// BGP message payload
	totalLen := 6 + 42 + len(bgpPayload)

	msg := make([]byte, totalLen)
	msg[0] = BMPVersion                                    // version
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen)) // msg_length
	msg[5] = MsgTypeRouteMonitoring                        // msg_type

	// Per-peer header starts at offset 6
	msg[6] = peerType // peer_type
	// peer_flags, distinguisher, address, AS, BGPID, timestamps = zeros (41 bytes)
	// BGP payload starts at 6+42 = 48

	copy(msg[48:], bgpPayload)
	return msg
}

// buildMinimalBGPUpdate builds a minimal BGP UPDATE with just the header.
func buildMinimalBGPUpdate() []byte {
	// BGP header: marker(16) + length(2) + type(1) = 19
	// UPDATE body: withdrawn_len(2) + path_attr_len(2) = 4
	msg := make([]byte, 23)
	// Marker: 16 bytes of 0xFF
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], 23) // length
	msg[18] = 2                                // type = UPDATE
	// withdrawn_len = 0, path_attr_len = 0 (already zero)
	return msg
}

func TestParse_RouteMonitoring(t *testing.T) {
	bgp := buildMinimalBGPUpdate()
	bmpMsg := buildBMPRouteMonitoring(PeerTypeGlobal, bgp)
	// Peer address: IPv4 192.0.2.1 in the 12-zeros + 4-bytes convention.
	copy(bmpMsg[6+10+12:], []byte{192, 0, 2, 1})

	parsed, err := Parse(bmpMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.MsgType != MsgTypeRouteMonitoring {
		t.Errorf("expected MsgType=%d, got %d", MsgTypeRouteMonitoring, parsed.MsgType)
	}
	if parsed.RouterID != "192.0.2.1" {
		t.Errorf("expected RouterID='192.0.2.1', got '%s'", parsed.RouterID)
	}
	if !bytes.Equal(parsed.BGPData, bgp) {
		t.Errorf("BGPData mismatch: %x", parsed.BGPData)
	}
}

func TestParse_RouterIDFallsBackToBGPID(t *testing.T) {
	bgp := buildMinimalBGPUpdate()
	bmpMsg := buildBMPRouteMonitoring(PeerTypeGlobal, bgp)
	// Peer address all zeros; BGP ID at per-peer offset 30 set.
	copy(bmpMsg[6+30:], []byte{10, 255, 0, 1})

	parsed, err := Parse(bmpMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.RouterID != "10.255.0.1" {
		t.Errorf("expected RouterID='10.255.0.1', got '%s'", parsed.RouterID)
	}
}

func TestParse_Initiation(t *testing.T) {
	// Initiation with sysName and sysDescr TLVs; no per-peer header.
	tlvs := make([]byte, 0, 32)
	add := func(typ uint16, v string) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], typ)
		binary.BigEndian.PutUint16(b[2:4], uint16(len(v)))
		tlvs = append(tlvs, b...)
		tlvs = append(tlvs, v...)
	}
	add(TLVTypeSysName, "edge1")
	add(TLVTypeSysDescr, "test collector")

	totalLen := 6 + len(tlvs)
	msg := make([]byte, 6)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = MsgTypeInitiation
	msg = append(msg, tlvs...)

	parsed, err := Parse(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.SysName != "edge1" {
		t.Errorf("expected SysName='edge1', got '%s'", parsed.SysName)
	}
	if parsed.SysDescr != "test collector" {
		t.Errorf("expected SysDescr='test collector', got '%s'", parsed.SysDescr)
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	msg := make([]byte, 6)
	msg[0] = 2 // wrong version
	binary.BigEndian.PutUint32(msg[1:5], 6)
	msg[5] = MsgTypeRouteMonitoring

	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for unsupported BMP version")
	}
}

func TestParse_PeerDown(t *testing.T) {
	totalLen := 6 + 42 + 1 // common header + per-peer header + reason byte
	msg := make([]byte, totalLen)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = MsgTypePeerDown
	copy(msg[6+10+12:], []byte{192, 0, 2, 9}) // peer address
	msg[6+42] = 2                             // reason

	parsed, err := Parse(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.MsgType != MsgTypePeerDown {
		t.Errorf("expected MsgType=%d, got %d", MsgTypePeerDown, parsed.MsgType)
	}
	if parsed.RouterID != "192.0.2.9" {
		t.Errorf("expected RouterID='192.0.2.9', got '%s'", parsed.RouterID)
	}
	if parsed.PeerDownReason != 2 {
		t.Errorf("expected reason 2, got %d", parsed.PeerDownReason)
	}
}

func TestParse_MsgLengthTooSmall(t *testing.T) {
	// msg_length=3 is smaller than CommonHeaderSize(6); must return error, not panic.
	msg := make([]byte, 6)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], 3) // msg_length < CommonHeaderSize
	msg[5] = MsgTypeRouteMonitoring

	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for msg_length smaller than common header size")
	}
}

func TestParse_MsgLengthExactlyHeader(t *testing.T) {
	// msg_length == CommonHeaderSize (6): valid header but no payload.
	msg := make([]byte, 6)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], 6)
	msg[5] = MsgTypeRouteMonitoring

	// Should error because Route Monitoring requires a per-peer header.
	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for Route Monitoring with no per-peer header")
	}
}

func TestParse_TruncatedPerPeerHeader(t *testing.T) {
	// Route Monitoring with only 10 bytes of per-peer header (needs 42).
	totalLen := 6 + 10
	msg := make([]byte, totalLen)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = MsgTypeRouteMonitoring

	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for truncated per-peer header")
	}
}

func TestParse_PeerDown_TruncatedPerPeerHeader(t *testing.T) {
	// Peer Down with only 20 bytes of per-peer header (needs 42).
	totalLen := 6 + 20
	msg := make([]byte, totalLen)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = MsgTypePeerDown

	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for truncated per-peer header in peer down")
	}
}

func TestParse_NoDataAfterPerPeerHeader(t *testing.T) {
	// Route Monitoring with exactly 42 bytes of per-peer header, no BGP data.
	totalLen := 6 + 42
	msg := make([]byte, totalLen)
	msg[0] = BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = MsgTypeRouteMonitoring

	_, err := Parse(msg)
	if err == nil {
		t.Fatal("expected error for Route Monitoring with no data after per-peer header")
	}
}

func TestParseAll_Concatenated(t *testing.T) {
	bgp := buildMinimalBGPUpdate()
	a := buildBMPRouteMonitoring(PeerTypeGlobal, bgp)
	b := buildBMPRouteMonitoring(PeerTypeGlobal, bgp)
	raw := append(append([]byte{}, a...), b...)

	results, err := ParseAll(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(results))
	}
	if results[0].Offset != 0 || results[1].Offset != len(a) {
		t.Errorf("unexpected offsets: %d, %d", results[0].Offset, results[1].Offset)
	}
}

func TestParseAll_SkipsBadMessage(t *testing.T) {
	bgp := buildMinimalBGPUpdate()
	good := buildBMPRouteMonitoring(PeerTypeGlobal, bgp)

	// First message has a valid common header but a truncated per-peer
	// header; ParseAll must skip it and still return the second.
	bad := make([]byte, 6+10)
	bad[0] = BMPVersion
	binary.BigEndian.PutUint32(bad[1:5], uint32(len(bad)))
	bad[5] = MsgTypeRouteMonitoring

	raw := append(append([]byte{}, bad...), good...)
	results, err := ParseAll(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 message, got %d", len(results))
	}
}
