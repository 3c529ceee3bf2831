package replicator

import (
	"io/ioutil"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/source/master"
)

const (
	_defaultMaxBlockRows  = 65535
	_defaultMaxBlockBytes = 1 << 20
	_defaultMaxTotalRows  = 65535
	_defaultMaxTotalBytes = 1 << 20

	_defaultMaxFlushDataTimeMS = 1000
	_defaultMaxWaitTimeMS      = 1000

	_defaultDumpBlockSize = 65536
)

type Config struct {
	SourceConfig struct {
		MasterConfig *master.Config `toml:"master_config"`
	} `toml:"source_config"`

	TargetConfig struct {
		// Path is the SQLite file holding materialized tables.
		Path string `toml:"path"`
		// MetaDir is where the replication metadata file lives.
		MetaDir string `toml:"meta_dir"`
	} `toml:"target_config"`

	SyncConfig struct {
		MaxRowsInBuffer   int   `toml:"max_rows_in_buffer"`
		MaxBytesInBuffer  int   `toml:"max_bytes_in_buffer"`
		MaxRowsInBuffers  int   `toml:"max_rows_in_buffers"`
		MaxBytesInBuffers int   `toml:"max_bytes_in_buffers"`
		MaxFlushDataTime  int64 `toml:"max_flush_data_time"`
		// MaxWaitTime is the pause before another prepare attempt when the
		// source is unreachable, in milliseconds.
		MaxWaitTime   int64 `toml:"max_wait_time_when_source_unavailable"`
		DumpBlockSize int   `toml:"dump_block_size"`
	} `toml:"sync_config"`

	MatcherConfig struct {
		IncludeRegex string `toml:"include_regex"`
		ExcludeRegex string `toml:"exclude_regex"`
	} `toml:"matcher_config"`
}

func NewConfigWithFile(name string) (*Config, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return NewConfig(string(data))
}

func NewConfig(data string) (*Config, error) {
	var c Config

	if _, err := toml.Decode(data, &c); err != nil {
		return nil, errors.Trace(err)
	}
	c.WithDefault()

	return &c, nil
}

func (c *Config) WithDefault() *Config {
	if c.SourceConfig.MasterConfig != nil {
		c.SourceConfig.MasterConfig.WithDefault()
	}
	if c.SyncConfig.MaxRowsInBuffer <= 0 {
		c.SyncConfig.MaxRowsInBuffer = _defaultMaxBlockRows
	}
	if c.SyncConfig.MaxBytesInBuffer <= 0 {
		c.SyncConfig.MaxBytesInBuffer = _defaultMaxBlockBytes
	}
	if c.SyncConfig.MaxRowsInBuffers <= 0 {
		c.SyncConfig.MaxRowsInBuffers = _defaultMaxTotalRows
	}
	if c.SyncConfig.MaxBytesInBuffers <= 0 {
		c.SyncConfig.MaxBytesInBuffers = _defaultMaxTotalBytes
	}
	if c.SyncConfig.MaxFlushDataTime <= 0 {
		c.SyncConfig.MaxFlushDataTime = _defaultMaxFlushDataTimeMS
	}
	if c.SyncConfig.MaxWaitTime <= 0 {
		c.SyncConfig.MaxWaitTime = _defaultMaxWaitTimeMS
	}
	if c.SyncConfig.DumpBlockSize <= 0 {
		c.SyncConfig.DumpBlockSize = _defaultDumpBlockSize
	}
	return c
}

func (c *Config) Validate() error {
	if c.SourceConfig.MasterConfig == nil {
		return errors.New("source_config.master_config is required")
	}
	if err := c.SourceConfig.MasterConfig.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.TargetConfig.MetaDir == "" {
		return errors.New("target_config.meta_dir is required")
	}
	return nil
}
