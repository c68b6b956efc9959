// Package influxdb records broker telemetry as time series.
//
// Three kinds of data land here: per-device heartbeat round-trip
// latency, session lifecycle events (connect/disconnect churn), and
// membership gauges sampled on an interval by cmd/farsight. The package
// wraps the official influxdb-client-go v2 library; points are batched
// and written asynchronously so nothing in the signalling path ever
// waits on InfluxDB.
//
// *Client satisfies the router's TelemetrySink seam directly:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	router.SetTelemetrySink(client)
//
// Because writes are batched, failures surface asynchronously; register
// a SetOnError callback to log them. Telemetry is advisory throughout:
// when InfluxDB is disabled or down the broker routes exactly as before,
// just without history.
package influxdb
