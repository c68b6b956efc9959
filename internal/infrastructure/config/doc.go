// Package config loads and validates the Farsight Core configuration.
//
// Configuration is read once at startup from a YAML file, checked for
// missing or contradictory settings, and then treated as immutable;
// nothing in the core re-reads it at runtime. Defaults are applied
// before validation so a minimal config.yaml stays minimal.
//
// Environment variables named FARSIGHT_SECTION_KEY override file
// values after parsing. This is how secrets (MQTT credentials, the
// InfluxDB token) stay out of the file, which should itself be 0600:
//
//	FARSIGHT_MQTT_PASSWORD=... FARSIGHT_INFLUXDB_TOKEN=... farsight
//
// Typical use:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
