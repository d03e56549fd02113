// Package influxdb records polled air-conditioner state in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every value the
// bridge publishes on a state topic can also be written here as one point
// in the "hvac_state" measurement, tagged by device name and topic suffix.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge, _ := hvac.NewBridge(hvac.Options{..., Sink: client})
//
// # Error Handling
//
// Writes are non-blocking and batched; write failures are delivered to the
// callback set with SetOnError. Only Connect returns errors; after Close
// points are silently dropped.
package influxdb
