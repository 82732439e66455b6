package bgp

import (
	"encoding/binary"
	"fmt"
)

// ParseUpdate parses a BGP UPDATE message (including the 19-byte BGP header)
// and returns one event per Link-State NLRI it carries. Non-UPDATE messages
// and updates without link-state content return an empty list.
func (p *AttrParser) ParseUpdate(data []byte) ([]*LinkStateEvent, error) {
	if len(data) < BGPHeaderSize {
		return nil, fmt.Errorf("bgp: update too short (%d bytes)", len(data))
	}

	msgType := data[18]
	if msgType != BGPMsgTypeUpdate {
		return nil, nil // Not an UPDATE message; skip.
	}

	payload := data[BGPHeaderSize:]
	return p.parseUpdatePayload(payload)
}

func (p *AttrParser) parseUpdatePayload(data []byte) ([]*LinkStateEvent, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bgp: update payload too short (%d bytes)", len(data))
	}

	offset := 0

	// Withdrawn routes section carries IPv4 unicast only; link-state
	// withdrawals arrive via MP_UNREACH_NLRI. Skip it by length.
	withdrawnLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+withdrawnLen > len(data) {
		return nil, fmt.Errorf("bgp: withdrawn length %d exceeds data", withdrawnLen)
	}
	offset += withdrawnLen

	if offset+2 > len(data) {
		return nil, fmt.Errorf("bgp: no room for path attr length")
	}
	totalPathAttrLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+totalPathAttrLen > len(data) {
		return nil, fmt.Errorf("bgp: path attr length %d exceeds data", totalPathAttrLen)
	}

	attrs, err := p.ParsePathAttributes(data[offset : offset+totalPathAttrLen])
	if err != nil {
		return nil, fmt.Errorf("bgp: parse path attrs: %w", err)
	}

	var events []*LinkStateEvent

	for _, n := range attrs.MPReachNLRI {
		events = append(events, &LinkStateEvent{
			Action:        "A",
			NLRI:          n,
			LinkStateAttr: attrs.LinkStateAttr,
		})
	}
	for _, n := range attrs.MPUnreachNLRI {
		events = append(events, &LinkStateEvent{
			Action: "D",
			NLRI:   n,
		})
	}

	return events, nil
}

// IsEOR reports whether a BGP UPDATE is a Link-State End-of-RIB marker:
// no withdrawn routes and either an empty attribute section or a lone
// MP_UNREACH_NLRI header for AFI 16388 / SAFI 71 with no NLRIs.
func IsEOR(data []byte) bool {
	if len(data) < BGPHeaderSize+4 {
		return false
	}
	if data[18] != BGPMsgTypeUpdate {
		return false
	}

	payload := data[BGPHeaderSize:]
	withdrawnLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if withdrawnLen != 0 {
		return false
	}
	if len(payload) < 4 {
		return false
	}
	attrLen := int(binary.BigEndian.Uint16(payload[2:4]))
	if 4+attrLen != len(payload) {
		return false
	}
	if attrLen == 0 {
		return true
	}

	// Single MP_UNREACH_NLRI attribute whose value is exactly AFI+SAFI.
	attr := payload[4:]
	if len(attr) < 3 {
		return false
	}
	flags := attr[0]
	typeCode := attr[1]
	if typeCode != AttrTypeMPUnreachNLRI {
		return false
	}

	var valOff, valLen int
	if flags&0x10 != 0 {
		if len(attr) < 4 {
			return false
		}
		valLen = int(binary.BigEndian.Uint16(attr[2:4]))
		valOff = 4
	} else {
		valLen = int(attr[2])
		valOff = 3
	}
	if valLen != 3 || valOff+valLen != len(attr) {
		return false
	}

	afi := binary.BigEndian.Uint16(attr[valOff : valOff+2])
	safi := attr[valOff+2]
	return afi == AFILinkState && safi == SAFILinkState
}
