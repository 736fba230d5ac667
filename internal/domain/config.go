package domain

import "time"

// Config carries the store tunables shared by repositories and adaptors.
type Config struct {
	CacheTTL      time.Duration
	RevRetryLimit uint64
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:      10 * time.Minute,
		RevRetryLimit: 8,
	}
}
