// Package hvac is the translation and polling engine between ECHONET Lite
// air conditioners and MQTT.
//
// A Bridge runs three phases:
//
//  1. Discovery: the protocol client announces nodes for a fixed window.
//     Home air conditioner objects are registered under a name derived from
//     their IP (10.0.0.5 becomes 10_0_0_5). Too few devices is fatal.
//  2. Subscription: the command topics of every device are subscribed,
//     one request per device.
//  3. Polling: devices are read one at a time, in name order, and each
//     state property is published. The watchdog is pinged per device.
//
// # Topics
//
//	/<prefix>/<device>/hvac_command_power        on | off
//	/<prefix>/<device>/hvac_command_mode         auto | cool | heat | dry | fan_only | other
//	/<prefix>/<device>/hvac_command_fan_mode     auto | quiet | low | medium | high | super_high
//	/<prefix>/<device>/hvac_command_temperature  integer °C
//	/<prefix>/<device>/hvac_state_power          true | false
//	/<prefix>/<device>/hvac_state_mode           mode name, or off while powered off
//	/<prefix>/<device>/hvac_state_fan_mode       fan name, or off while powered off
//	/<prefix>/<device>/hvac_state_temperature    integer °C
//	/<prefix>/<device>/hvac_state_room_temperature integer °C
//	/<prefix>/bridge/health                      JSON, retained
//
// # Concurrency
//
// Every device call runs on the Executor goroutine. Poll reads wait for
// their result; command writes are queued and dropped when the queue is full.
package hvac
