package main

// Config holds the environment-driven knobs for the demo binary. Field
// tags follow the envconfig convention used elsewhere in the pack
// (struct tag + default, processed with a prefix).
type Config struct {
	LogLevel        string `envconfig:"LOG_LEVEL" default:"warning"`
	MetricsName     string `envconfig:"METRICS_NAME" default:"pagereleasedemo"`
	BlockSize       uint64 `envconfig:"BLOCK_SIZE" default:"48"`
	RegionSize      uint64 `envconfig:"REGION_SIZE" default:"262144"`
	NumberOfRegions uint64 `envconfig:"NUM_REGIONS" default:"1"`
}
