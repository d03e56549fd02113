// Package config handles loading and validating the bridge configuration.
//
// This package manages:
//   - Loading an optional YAML file
//   - Loading a .env file when one exists
//   - Overriding with environment variables (MQTT_URL, DISCOVERY_TIME,
//     POLL_FREQUENCY, EXPECTED_DEVICE_COUNT, WATCHDOG_TIMEOUT, MQTT_PREFIX)
//   - Validation of required fields
//
// MQTT_URL is the only required value. Everything else has a default.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("ECHONET_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.PollInterval())
package config
