package store

import "fmt"

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	DBPath  string
	Redis   RedisConfig
}

// Open constructs the Store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		s, err := NewSQLite(opts.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := NewRedis(opts.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
