package echonet

import (
	"encoding/hex"
	"fmt"
)

// Property codes used by the bridge. Home air conditioner codes come from
// APPENDIX Detailed Requirements for ECHONET Device Objects, class 0x0130.
const (
	EPCOperationStatus          EPC = 0x80
	EPCInstallationLocation     EPC = 0x81
	EPCFaultStatus              EPC = 0x88
	EPCManufacturerCode         EPC = 0x8A
	EPCGetPropertyMap           EPC = 0x9F
	EPCAirFlowRate              EPC = 0xA0
	EPCOperationMode            EPC = 0xB0
	EPCTargetTemperature        EPC = 0xB3
	EPCRoomTemperature          EPC = 0xBB
	EPCInstanceListNotification EPC = 0xD5
	EPCSelfNodeInstanceListS    EPC = 0xD6
)

// Raw EDT values.
const (
	edtOn  byte = 0x30
	edtOff byte = 0x31

	edtModeBase  byte = 0x40
	modeCount         = 6
	edtFanAuto   byte = 0x41
	edtFanLevel0 byte = 0x30
	fanMaxLevel       = 8

	maxTargetCelsius = 50
)

// Value is a decoded property value. The concrete types are
// OperationStatus, OperationMode, FanSpeed, Temperature and Raw.
type Value interface {
	// EPC returns the property code the value belongs to.
	EPC() EPC

	// First returns the value's first scalar field.
	First() any

	encode() ([]byte, error)
}

// OperationStatus is EPC 0x80.
type OperationStatus struct {
	On bool
}

func (OperationStatus) EPC() EPC     { return EPCOperationStatus }
func (v OperationStatus) First() any { return v.On }

func (v OperationStatus) encode() ([]byte, error) {
	if v.On {
		return []byte{edtOn}, nil
	}
	return []byte{edtOff}, nil
}

// OperationMode is EPC 0xB0. Index is the raw code minus 0x40, so
// 0 other, 1 auto, 2 cool, 3 heat, 4 dry, 5 fan_only. Codes outside that
// range decode to an index the caller reports as unknown.
type OperationMode struct {
	Index int
}

func (OperationMode) EPC() EPC     { return EPCOperationMode }
func (v OperationMode) First() any { return v.Index }

func (v OperationMode) encode() ([]byte, error) {
	if v.Index < 0 || v.Index >= modeCount {
		return nil, fmt.Errorf("%w: operation mode index %d", ErrInvalidEDT, v.Index)
	}
	return []byte{edtModeBase + byte(v.Index)}, nil
}

// FanSpeed is EPC 0xA0. Level 0 is automatic, 1 to 8 are the fixed
// levels. Codes outside the defined set decode to Level -1.
type FanSpeed struct {
	Level int
}

func (FanSpeed) EPC() EPC     { return EPCAirFlowRate }
func (v FanSpeed) First() any { return v.Level }

func (v FanSpeed) encode() ([]byte, error) {
	switch {
	case v.Level == 0:
		return []byte{edtFanAuto}, nil
	case v.Level >= 1 && v.Level <= fanMaxLevel:
		return []byte{edtFanLevel0 + byte(v.Level)}, nil
	default:
		return nil, fmt.Errorf("%w: fan level %d", ErrInvalidEDT, v.Level)
	}
}

// Temperature is EPC 0xB3 (target, unsigned) or 0xBB (room, signed).
type Temperature struct {
	Code    EPC
	Celsius int
}

func (v Temperature) EPC() EPC   { return v.Code }
func (v Temperature) First() any { return v.Celsius }

func (v Temperature) encode() ([]byte, error) {
	if v.Code != EPCTargetTemperature {
		return nil, fmt.Errorf("%w: %s is read-only", ErrInvalidEDT, v.Code)
	}
	if v.Celsius < 0 || v.Celsius > maxTargetCelsius {
		return nil, fmt.Errorf("%w: target temperature %d out of range", ErrInvalidEDT, v.Celsius)
	}
	return []byte{byte(v.Celsius)}, nil
}

// Raw carries property data the bridge has no typed codec for.
type Raw struct {
	Code EPC
	Data []byte
}

func (v Raw) EPC() EPC { return v.Code }

// First returns the single byte as an int, or the data as hex when it is
// longer. Empty data yields nil.
func (v Raw) First() any {
	switch len(v.Data) {
	case 0:
		return nil
	case 1:
		return int(v.Data[0])
	default:
		return hex.EncodeToString(v.Data)
	}
}

func (v Raw) encode() ([]byte, error) {
	return v.Data, nil
}

// Convenience constructors for write commands.

// Power returns an operation status value.
func Power(on bool) Value { return OperationStatus{On: on} }

// Mode returns an operation mode value.
func Mode(index int) Value { return OperationMode{Index: index} }

// Fan returns an air flow rate value.
func Fan(level int) Value { return FanSpeed{Level: level} }

// TargetTemperature returns a target temperature value.
func TargetTemperature(celsius int) Value {
	return Temperature{Code: EPCTargetTemperature, Celsius: celsius}
}

// Encode converts a value to its EDT bytes.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrInvalidEDT)
	}
	return v.encode()
}

// Decode converts EDT bytes to a typed value for known home air
// conditioner properties and to Raw for everything else.
func Decode(epc EPC, edt []byte) (Value, error) {
	switch epc {
	case EPCOperationStatus:
		if len(edt) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 byte, got %d", ErrInvalidEDT, epc, len(edt))
		}
		switch edt[0] {
		case edtOn:
			return OperationStatus{On: true}, nil
		case edtOff:
			return OperationStatus{On: false}, nil
		default:
			return nil, fmt.Errorf("%w: operation status 0x%02X", ErrInvalidEDT, edt[0])
		}

	case EPCOperationMode:
		if len(edt) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 byte, got %d", ErrInvalidEDT, epc, len(edt))
		}
		return OperationMode{Index: int(edt[0]) - int(edtModeBase)}, nil

	case EPCAirFlowRate:
		if len(edt) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 byte, got %d", ErrInvalidEDT, epc, len(edt))
		}
		raw := edt[0]
		switch {
		case raw == edtFanAuto:
			return FanSpeed{Level: 0}, nil
		case raw > edtFanLevel0 && raw <= edtFanLevel0+fanMaxLevel:
			return FanSpeed{Level: int(raw - edtFanLevel0)}, nil
		default:
			return FanSpeed{Level: -1}, nil
		}

	case EPCTargetTemperature:
		if len(edt) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 byte, got %d", ErrInvalidEDT, epc, len(edt))
		}
		return Temperature{Code: epc, Celsius: int(edt[0])}, nil

	case EPCRoomTemperature:
		if len(edt) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 byte, got %d", ErrInvalidEDT, epc, len(edt))
		}
		return Temperature{Code: epc, Celsius: int(int8(edt[0]))}, nil

	default:
		data := make([]byte, len(edt))
		copy(data, edt)
		return Raw{Code: epc, Data: data}, nil
	}
}
