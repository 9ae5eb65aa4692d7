package util

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// GetConcurrency returns the configured worker count, defaulting to 8
func GetConcurrency() int {
	n := viper.GetInt("concurrency")
	if n <= 0 {
		return 8
	}
	return n
}

// GetPartitions returns the configured number of frame partitions, defaulting to 8
func GetPartitions() int {
	n := viper.GetInt("partitions")
	if n <= 0 {
		return 8
	}
	return n
}

// GetLocation resolves the "timezone" setting. An empty value means the
// process local zone, matching how start_time has always been rendered.
func GetLocation() (*time.Location, error) {
	name := viper.GetString("timezone")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, name, err)
	}
	return loc, nil
}
