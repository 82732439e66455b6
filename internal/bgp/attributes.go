package bgp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
)

// PathAttributes holds the Link-State relevant pieces of a BGP UPDATE's
// path attribute section. Attributes of other families are skipped.
type PathAttributes struct {
	// MPReachNLRI / MPUnreachNLRI hold the decoded Link-State NLRIs of
	// the MP_REACH_NLRI and MP_UNREACH_NLRI attributes, in wire order.
	MPReachNLRI   []bgpls.NLRI
	MPUnreachNLRI []bgpls.NLRI

	// LinkStateAttr is the raw value of the BGP-LS attribute (type 29):
	// a TLV chain rendered lazily, never decoded into structs here.
	LinkStateAttr []byte
}

// AttrParser walks BGP UPDATE path attributes and extracts Link-State
// content. NLRI decoding is delegated to the bgpls decoder it wraps.
type AttrParser struct {
	dec    *bgpls.Decoder
	logger *zap.Logger
}

func NewAttrParser(logger *zap.Logger) *AttrParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttrParser{
		dec:    bgpls.NewDecoder(logger),
		logger: logger,
	}
}

// ParsePathAttributes parses the path attributes section of a BGP UPDATE.
// Attributes other than MP_REACH_NLRI, MP_UNREACH_NLRI and the Link-State
// attribute are skipped by their declared length.
func (p *AttrParser) ParsePathAttributes(data []byte) (*PathAttributes, error) {
	attrs := &PathAttributes{}

	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return attrs, fmt.Errorf("bgp: attr header truncated at offset %d", offset)
		}

		flags := data[offset]
		typeCode := data[offset+1]
		offset += 2

		// Attribute length: 1 byte or 2 bytes depending on Extended Length flag.
		var attrLen int
		if flags&0x10 != 0 { // Extended Length
			if offset+2 > len(data) {
				return attrs, fmt.Errorf("bgp: extended attr length truncated")
			}
			attrLen = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		} else {
			if offset+1 > len(data) {
				return attrs, fmt.Errorf("bgp: attr length truncated")
			}
			attrLen = int(data[offset])
			offset++
		}

		if offset+attrLen > len(data) {
			return attrs, fmt.Errorf("bgp: attr data truncated (type %d, need %d, have %d)", typeCode, attrLen, len(data)-offset)
		}

		attrData := data[offset : offset+attrLen]
		offset += attrLen

		switch typeCode {
		case AttrTypeMPReachNLRI:
			nlris, err := p.parseMPReachNLRI(attrData)
			if err != nil {
				return attrs, err
			}
			attrs.MPReachNLRI = nlris
		case AttrTypeMPUnreachNLRI:
			nlris, err := p.parseMPUnreachNLRI(attrData)
			if err != nil {
				return attrs, err
			}
			attrs.MPUnreachNLRI = nlris
		case AttrTypeLinkState:
			v := make([]byte, len(attrData))
			copy(v, attrData)
			attrs.LinkStateAttr = v
		default:
			// Origin, AS_PATH etc. carry no link-state content.
		}
	}

	return attrs, nil
}

// parseMPReachNLRI extracts the Link-State NLRI list from an MP_REACH_NLRI
// attribute. Other address families return a nil list without error.
func (p *AttrParser) parseMPReachNLRI(data []byte) ([]bgpls.NLRI, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bgp: mp_reach_nlri too short (%d bytes)", len(data))
	}

	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	if afi != AFILinkState || safi != SAFILinkState {
		return nil, nil
	}

	// Next-hop (length-prefixed), then the reserved SNPA count byte.
	nhLen := int(data[3])
	offset := 4
	if offset+nhLen+1 > len(data) {
		return nil, fmt.Errorf("bgp: mp_reach_nlri next-hop truncated (need %d, have %d)", nhLen+1, len(data)-offset)
	}
	offset += nhLen + 1

	return p.parseNLRIList(data[offset:])
}

// parseMPUnreachNLRI extracts the Link-State NLRI list from an
// MP_UNREACH_NLRI attribute.
func (p *AttrParser) parseMPUnreachNLRI(data []byte) ([]bgpls.NLRI, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("bgp: mp_unreach_nlri too short (%d bytes)", len(data))
	}

	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	if afi != AFILinkState || safi != SAFILinkState {
		return nil, nil
	}

	return p.parseNLRIList(data[3:])
}

// parseNLRIList walks the type/length framed Link-State NLRIs packed back to
// back in an MP attribute and decodes each. An NLRI of an unknown type is
// skipped by its declared length; a malformed NLRI fails the whole list.
func (p *AttrParser) parseNLRIList(data []byte) ([]bgpls.NLRI, error) {
	var out []bgpls.NLRI

	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return out, fmt.Errorf("bgp: nlri header truncated at offset %d", offset)
		}
		nlriType := binary.BigEndian.Uint16(data[offset : offset+2])
		nlriLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+nlriLen > len(data) {
			return out, fmt.Errorf("bgp: nlri value truncated (type %d, need %d, have %d)", nlriType, nlriLen, len(data)-offset)
		}

		n, err := p.dec.DecodeNLRI(nlriType, data[offset:offset+nlriLen])
		if err != nil {
			if errors.Is(err, bgpls.ErrUnknownType) {
				p.logger.Debug("skipping unknown link-state NLRI",
					zap.Uint16("type", nlriType),
					zap.Int("length", nlriLen),
				)
				offset += nlriLen
				continue
			}
			return out, fmt.Errorf("bgp: decode %s NLRI: %w", bgpls.NLRITypeName(nlriType), err)
		}
		out = append(out, n)
		offset += nlriLen
	}

	return out, nil
}
