package flagx

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvString sets *dst from the environment variable name if it is set.
func EnvString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

// EnvInt64 sets *dst from the environment variable name if it is set.
func EnvInt64(name string, dst *int64) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// EnvBool sets *dst from the environment variable name if it is set.
func EnvBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// EnvDuration sets *dst from the environment variable name if it is set.
// Values use time.ParseDuration syntax, e.g. "15m".
func EnvDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
