package bmp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseAll parses all concatenated BMP messages from raw bytes.
// goBMP may bundle multiple BMP messages in a single raw Kafka record
// (one per TCP read). Returns all successfully parsed messages.
func ParseAll(data []byte) ([]*ParsedBMP, error) {
	var results []*ParsedBMP
	offset := 0
	for offset < len(data) {
		remaining := data[offset:]
		if len(remaining) < CommonHeaderSize {
			break
		}
		msgLength := binary.BigEndian.Uint32(remaining[1:5])
		if msgLength < uint32(CommonHeaderSize) || msgLength > uint32(len(remaining)) {
			break
		}
		parsed, err := Parse(remaining[:msgLength])
		if err != nil {
			// Skip this message and try the next.
			offset += int(msgLength)
			continue
		}
		// Store the offset of this BMP message within the raw payload
		// so callers can extract the per-peer header.
		parsed.Offset = offset
		results = append(results, parsed)
		offset += int(msgLength)
	}
	if len(results) == 0 && offset == 0 {
		return nil, fmt.Errorf("bmp: no valid messages found in %d bytes", len(data))
	}
	return results, nil
}

// Parse parses a complete BMP message from raw bytes.
func Parse(data []byte) (*ParsedBMP, error) {
	if len(data) < CommonHeaderSize {
		return nil, fmt.Errorf("bmp: message too short for common header (%d bytes)", len(data))
	}

	version := data[0]
	if version != BMPVersion {
		return nil, fmt.Errorf("bmp: unsupported version %d (expected %d)", version, BMPVersion)
	}

	msgLength := binary.BigEndian.Uint32(data[1:5])
	msgType := data[5]

	if msgLength < uint32(CommonHeaderSize) {
		return nil, fmt.Errorf("bmp: declared msg_length %d smaller than common header size %d", msgLength, CommonHeaderSize)
	}
	if int(msgLength) > len(data) {
		return nil, fmt.Errorf("bmp: declared msg_length %d exceeds available data %d", msgLength, len(data))
	}

	result := &ParsedBMP{MsgType: msgType}

	switch msgType {
	case MsgTypeRouteMonitoring:
		return parseRouteMonitoring(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerDown:
		return parsePeerDown(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerUp:
		return parsePeerUp(data[CommonHeaderSize:msgLength], result)
	case MsgTypeInitiation:
		parseTLVs(data[CommonHeaderSize:msgLength], result)
		return result, nil
	case MsgTypeTermination:
		return result, nil
	default:
		// Statistics Report (1) and Route Mirroring (6) are not needed
		// for link-state ingestion.
		return result, nil
	}
}

// parseRouteMonitoring extracts the embedded BGP UPDATE. BMP route
// monitoring carries exactly one BGP message after the per-peer header.
func parseRouteMonitoring(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: route monitoring too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.PeerFlags = data[1]
	result.RouterID = RouterIDFromPeerHeader(data)

	if len(data) <= PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: no data after per-peer header")
	}
	result.BGPData = data[PerPeerHeaderSize:]
	return result, nil
}

func parsePeerDown(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: peer down too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.PeerFlags = data[1]
	result.RouterID = RouterIDFromPeerHeader(data)

	if len(data) > PerPeerHeaderSize {
		result.PeerDownReason = data[PerPeerHeaderSize]
	}
	return result, nil
}

func parsePeerUp(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: peer up too short for per-peer header (%d bytes)", len(data))
	}
	result.PeerType = data[0]
	result.PeerFlags = data[1]
	result.RouterID = RouterIDFromPeerHeader(data)
	return result, nil
}

// parseTLVs extracts the information TLVs of an Initiation message.
func parseTLVs(data []byte, result *ParsedBMP) {
	offset := 0
	for offset+4 <= len(data) {
		tlvType := binary.BigEndian.Uint16(data[offset : offset+2])
		tlvLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+tlvLen > len(data) {
			break
		}

		value := data[offset : offset+tlvLen]
		switch tlvType {
		case TLVTypeSysDescr:
			result.SysDescr = string(value)
		case TLVTypeSysName:
			result.SysName = string(value)
		}

		offset += tlvLen
	}
}

// RouterIDFromPeerHeader extracts the router identifier from a BMP per-peer header.
//
// Per-peer header layout (RFC 7854 Section 4.2):
//
//	Offset  0: Peer Type (1 byte)
//	Offset  1: Peer Flags (1 byte)
//	Offset  2: Peer Distinguisher (8 bytes)
//	Offset 10: Peer Address (16 bytes)
//	Offset 26: Peer AS (4 bytes)
//	Offset 30: Peer BGP ID (4 bytes)
//
// When the Peer Address is all zeros the Peer BGP ID is used instead; some
// exporters zero the address on locally sourced sessions.
func RouterIDFromPeerHeader(data []byte) string {
	if len(data) < PerPeerHeaderSize {
		return ""
	}

	// Peer address at offset 10, 16 bytes (IPv6-mapped).
	addr := data[10:26]

	allZero := true
	for _, b := range addr {
		if b != 0 {
			allZero = false
			break
		}
	}

	if allZero {
		bgpID := data[30:34]
		bgpIDZero := true
		for _, b := range bgpID {
			if b != 0 {
				bgpIDZero = false
				break
			}
		}
		if !bgpIDZero {
			return net.IP(bgpID).String()
		}
		return ""
	}

	// BMP (RFC 7854 §4.2) encodes IPv4 as 12 zero bytes + 4 IPv4 bytes,
	// which differs from the ::ffff: IPv4-mapped format that net.IP.To4()
	// recognizes. Check for the BMP convention explicitly.
	isV4 := true
	for _, b := range addr[:12] {
		if b != 0 {
			isV4 = false
			break
		}
	}
	if isV4 {
		return net.IP(addr[12:16]).String()
	}
	return net.IP(addr).String()
}
