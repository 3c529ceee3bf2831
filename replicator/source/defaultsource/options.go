package defaultsource

import (
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

const (
	_defaultHeartbeatPeriod = 200 * time.Millisecond
	_defaultReadTimeout     = 500 * time.Millisecond
)

type Option func(s *Source)

// WithReplication sets the connection template for the binlog syncer. The
// server id is overridden per StartDump call.
func WithReplication(cfg replication.BinlogSyncerConfig) Option {
	return func(s *Source) {
		if len(cfg.Charset) == 0 {
			cfg.Charset = mysql.DEFAULT_CHARSET
		}
		if len(cfg.Flavor) == 0 {
			cfg.Flavor = mysql.MySQLFlavor
		}
		if cfg.HeartbeatPeriod == 0 {
			cfg.HeartbeatPeriod = _defaultHeartbeatPeriod
		}
		if cfg.ReadTimeout == 0 {
			cfg.ReadTimeout = _defaultReadTimeout
		}
		s.replicationConfig = cfg
	}
}

// WithEndpoint is a shorthand for the usual host/credential fields.
func WithEndpoint(host string, port uint16, user, password string) Option {
	return func(s *Source) {
		cfg := s.replicationConfig
		cfg.Host = host
		cfg.Port = port
		cfg.User = user
		cfg.Password = password
		WithReplication(cfg)(s)
	}
}
