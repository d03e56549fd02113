package hvac

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// Bus values with special meaning.
const (
	ValueOn      = "on"
	ValueOff     = "off"
	ValueUnknown = "unknown"
)

// modeNames maps operation mode index to bus name.
var modeNames = [...]string{"other", "auto", "cool", "heat", "dry", "fan_only"}

// fanReadNames maps device fan level to bus name. Levels 4, 7 and 8 share
// names with their neighbours.
var fanReadNames = [...]string{
	0: "auto",
	1: "quiet",
	2: "low",
	3: "medium",
	4: "medium",
	5: "high",
	6: "super_high",
	7: "high",
	8: "high",
}

// fanWriteLevels maps bus name to the level written to the device.
var fanWriteLevels = map[string]int{
	"auto":       0,
	"quiet":      1,
	"low":        2,
	"medium":     3,
	"high":       5,
	"super_high": 6,
}

// defaultFanLevel is written for fan names outside fanWriteLevels (low).
const defaultFanLevel = 2

const maxTargetTemperature = 50

// EncodeCommand converts a command payload for a property into a value to
// write. Payloads are matched case-insensitively after trimming.
//
// Returns:
//   - echonet.Value: The value to write
//   - error: ErrUnsupportedValue for "on"/"off" on mode and "off" on fan,
//     ErrInvalidValue for anything that cannot be encoded
func EncodeCommand(epc echonet.EPC, payload string) (echonet.Value, error) {
	s := strings.ToLower(strings.TrimSpace(payload))

	switch epc {
	case echonet.EPCOperationStatus:
		switch s {
		case ValueOn:
			return echonet.Power(true), nil
		case ValueOff:
			return echonet.Power(false), nil
		default:
			return nil, fmt.Errorf("%w: power %q (want on or off)", ErrInvalidValue, payload)
		}

	case echonet.EPCOperationMode:
		if s == ValueOn || s == ValueOff {
			return nil, fmt.Errorf("%w: mode %q, use the power topic", ErrUnsupportedValue, payload)
		}
		for i, name := range modeNames {
			if name == s {
				return echonet.Mode(i), nil
			}
		}
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidValue, payload)

	case echonet.EPCAirFlowRate:
		if s == ValueOff {
			return nil, fmt.Errorf("%w: fan mode %q, use the power topic", ErrUnsupportedValue, payload)
		}
		level, ok := fanWriteLevels[s]
		if !ok {
			level = defaultFanLevel
		}
		return echonet.Fan(level), nil

	case echonet.EPCTargetTemperature:
		return encodeTargetTemperature(payload, s)

	default:
		return nil, fmt.Errorf("%w: property %s is not writable", ErrInvalidValue, epc)
	}
}

// encodeTargetTemperature accepts integer and decimal payloads ("22",
// "22.0", "22.5"). The fraction is truncated; the device takes whole degrees.
func encodeTargetTemperature(payload, s string) (echonet.Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: temperature %q: %w", ErrInvalidValue, payload, err)
	}
	if math.IsNaN(f) || f < 0 || f > maxTargetTemperature {
		return nil, fmt.Errorf("%w: temperature %q out of range 0-%d", ErrInvalidValue, payload, maxTargetTemperature)
	}
	return echonet.TargetTemperature(int(f)), nil
}

// DecodeState converts a read value to its bus representation: bool for
// power, a name for mode and fan, and the first field for everything else.
func DecodeState(value echonet.Value) any {
	switch v := value.(type) {
	case nil:
		return nil
	case echonet.OperationStatus:
		return v.On
	case echonet.OperationMode:
		return lookupName(modeNames[:], v.Index)
	case echonet.FanSpeed:
		return lookupName(fanReadNames[:], v.Level)
	default:
		return value.First()
	}
}

func lookupName(names []string, index int) string {
	if index < 0 || index >= len(names) {
		return ValueUnknown
	}
	return names[index]
}

// FormatPayload renders a decoded value as an MQTT payload.
func FormatPayload(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
