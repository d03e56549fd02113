package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementHVACState is the measurement polled state is written to.
const MeasurementHVACState = "hvac_state"

// WriteState records one polled state value. It satisfies the bridge's
// state sink. Values without a field mapping are skipped.
//
// Example:
//
//	client.WriteState("10_0_0_5", "hvac_state_room_temperature", 24)
//	// hvac_state,device=10_0_0_5,property=hvac_state_room_temperature value=24
func (c *Client) WriteState(device, suffix string, value any) {
	c.WriteStateAt(device, suffix, value, time.Now())
}

// WriteStateAt is WriteState with an explicit timestamp.
func (c *Client) WriteStateAt(device, suffix string, value any, at time.Time) {
	if !c.active() {
		return
	}

	point := statePoint(device, suffix, value, at)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

// statePoint builds the point for a state value, or nil if the value has
// no field mapping.
func statePoint(device, suffix string, value any, at time.Time) *write.Point {
	fields := stateFields(value)
	if fields == nil {
		return nil
	}
	return write.NewPoint(
		MeasurementHVACState,
		map[string]string{
			"device":   device,
			"property": suffix,
		},
		fields,
		at,
	)
}

// stateFields maps a decoded value onto fields. Numbers go to "value",
// booleans to "on" and enum names to "state".
func stateFields(value any) map[string]any {
	switch v := value.(type) {
	case int:
		return map[string]any{"value": float64(v)}
	case float64:
		return map[string]any{"value": v}
	case bool:
		return map[string]any{"on": v}
	case string:
		if v == "" {
			return nil
		}
		return map[string]any{"state": v}
	default:
		return nil
	}
}
