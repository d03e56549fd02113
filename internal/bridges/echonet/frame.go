package echonet

import (
	"encoding/binary"
	"fmt"
)

// Frame header constants (ECHONET Lite specification, part 2, chapter 3).
const (
	// EHD1 identifies an ECHONET Lite frame.
	EHD1 byte = 0x10

	// EHD2Format1 selects the specified message format (EPC/PDC/EDT triples).
	EHD2Format1 byte = 0x81

	// headerLen is EHD1 + EHD2 + TID(2) + SEOJ(3) + DEOJ(3) + ESV + OPC.
	headerLen = 12

	// maxProperties is the largest OPC value.
	maxProperties = 255

	// maxEDTLen is the largest PDC value.
	maxEDTLen = 255
)

// EOJ is an ECHONET object identifier: class group code, class code and
// instance code.
type EOJ [3]byte

// Well-known objects.
var (
	// NodeProfile is the node profile object every node exposes.
	NodeProfile = EOJ{0x0E, 0xF0, 0x01}

	// Controller is the object this bridge speaks as.
	Controller = EOJ{0x05, 0xFF, 0x01}
)

// Device class codes the bridge cares about.
const (
	ClassGroupAirConditioner byte = 0x01
	ClassHomeAirConditioner  byte = 0x30
)

// MakeEOJ builds an EOJ from its three codes.
func MakeEOJ(classGroup, class, instance byte) EOJ {
	return EOJ{classGroup, class, instance}
}

// ClassGroup returns the class group code.
func (e EOJ) ClassGroup() byte { return e[0] }

// Class returns the class code.
func (e EOJ) Class() byte { return e[1] }

// Instance returns the instance code.
func (e EOJ) Instance() byte { return e[2] }

// IsHomeAirConditioner reports whether the object is a home air conditioner
// (class group 0x01, class 0x30).
func (e EOJ) IsHomeAirConditioner() bool {
	return e[0] == ClassGroupAirConditioner && e[1] == ClassHomeAirConditioner
}

// String formats the EOJ as "0130:01".
func (e EOJ) String() string {
	return fmt.Sprintf("%02X%02X:%02X", e[0], e[1], e[2])
}

// ESV is the ECHONET Lite service code.
type ESV byte

// Service codes.
const (
	ESVSetISNA ESV = 0x50
	ESVSetCSNA ESV = 0x51
	ESVGetSNA  ESV = 0x52
	ESVINFSNA  ESV = 0x53
	ESVSetI    ESV = 0x60
	ESVSetC    ESV = 0x61
	ESVGet     ESV = 0x62
	ESVINFReq  ESV = 0x63
	ESVSetRes  ESV = 0x71
	ESVGetRes  ESV = 0x72
	ESVINF     ESV = 0x73
	ESVINFC    ESV = 0x74
)

var esvNames = map[ESV]string{
	ESVSetISNA: "SetI_SNA",
	ESVSetCSNA: "SetC_SNA",
	ESVGetSNA:  "Get_SNA",
	ESVINFSNA:  "INF_SNA",
	ESVSetI:    "SetI",
	ESVSetC:    "SetC",
	ESVGet:     "Get",
	ESVINFReq:  "INF_REQ",
	ESVSetRes:  "Set_Res",
	ESVGetRes:  "Get_Res",
	ESVINF:     "INF",
	ESVINFC:    "INFC",
}

// String returns the ECHONET Lite service mnemonic, e.g. "Get_Res".
func (s ESV) String() string {
	if name, ok := esvNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ESV(0x%02X)", byte(s))
}

// IsFailure reports whether the service code is a "service not available" response.
func (s ESV) IsFailure() bool {
	return s >= 0x50 && s <= 0x5F
}

// EPC is a property code.
type EPC byte

// String formats the code as "0x80".
func (p EPC) String() string {
	return fmt.Sprintf("0x%02X", byte(p))
}

// Property is a single EPC/EDT pair. PDC is implied by len(EDT).
type Property struct {
	EPC EPC
	EDT []byte
}

// Frame is a decoded ECHONET Lite format-1 message.
type Frame struct {
	TID        uint16
	SEOJ       EOJ
	DEOJ       EOJ
	ESV        ESV
	Properties []Property
}

// Property returns the first property with the given code.
func (f Frame) Property(epc EPC) (Property, bool) {
	for _, p := range f.Properties {
		if p.EPC == epc {
			return p, true
		}
	}
	return Property{}, false
}

// MarshalBinary encodes the frame for transmission.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Properties) > maxProperties {
		return nil, fmt.Errorf("%w: %d properties exceeds %d", ErrInvalidFrame, len(f.Properties), maxProperties)
	}

	size := headerLen
	for _, p := range f.Properties {
		if len(p.EDT) > maxEDTLen {
			return nil, fmt.Errorf("%w: EDT for %s is %d bytes", ErrInvalidFrame, p.EPC, len(p.EDT))
		}
		size += 2 + len(p.EDT)
	}

	buf := make([]byte, headerLen, size)
	buf[0] = EHD1
	buf[1] = EHD2Format1
	binary.BigEndian.PutUint16(buf[2:4], f.TID)
	copy(buf[4:7], f.SEOJ[:])
	copy(buf[7:10], f.DEOJ[:])
	buf[10] = byte(f.ESV)
	buf[11] = byte(len(f.Properties))

	for _, p := range f.Properties {
		buf = append(buf, byte(p.EPC), byte(len(p.EDT)))
		buf = append(buf, p.EDT...)
	}

	return buf, nil
}

// ParseFrame decodes a received datagram.
//
// Returns:
//   - Frame: The decoded frame; EDT slices do not alias data
//   - error: ErrInvalidFrame if the header or a property is malformed
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than header", ErrInvalidFrame, len(data))
	}
	if data[0] != EHD1 || data[1] != EHD2Format1 {
		return Frame{}, fmt.Errorf("%w: unsupported header %02X%02X", ErrInvalidFrame, data[0], data[1])
	}

	f := Frame{
		TID: binary.BigEndian.Uint16(data[2:4]),
		ESV: ESV(data[10]),
	}
	copy(f.SEOJ[:], data[4:7])
	copy(f.DEOJ[:], data[7:10])

	opc := int(data[11])
	f.Properties = make([]Property, 0, opc)

	pos := headerLen
	for i := range opc {
		if pos+2 > len(data) {
			return Frame{}, fmt.Errorf("%w: property %d truncated", ErrInvalidFrame, i)
		}
		epc := EPC(data[pos])
		pdc := int(data[pos+1])
		pos += 2
		if pos+pdc > len(data) {
			return Frame{}, fmt.Errorf("%w: EDT for %s truncated", ErrInvalidFrame, epc)
		}
		edt := make([]byte, pdc)
		copy(edt, data[pos:pos+pdc])
		pos += pdc
		f.Properties = append(f.Properties, Property{EPC: epc, EDT: edt})
	}

	return f, nil
}

// ParseInstanceList decodes the EDT of EPC 0xD5 or 0xD6: a count followed
// by that many EOJs.
func ParseInstanceList(edt []byte) ([]EOJ, error) {
	if len(edt) < 1 {
		return nil, fmt.Errorf("%w: empty instance list", ErrInvalidEDT)
	}
	count := int(edt[0])
	if len(edt) < 1+count*3 {
		return nil, fmt.Errorf("%w: instance list declares %d objects in %d bytes", ErrInvalidEDT, count, len(edt))
	}

	eojs := make([]EOJ, 0, count)
	for i := range count {
		off := 1 + i*3
		eojs = append(eojs, EOJ{edt[off], edt[off+1], edt[off+2]})
	}
	return eojs, nil
}
