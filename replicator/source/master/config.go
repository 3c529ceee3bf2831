package master

import (
	"encoding/json"
	"fmt"
)

const (
	_defaultConnectDBName        = "information_schema"
	_defaultNetwork              = "tcp"
	_defaultPort          uint16 = 3306
	_defaultConnMaxLifetime      = 100 // 单位:s
	_defaultMaxOpenConns         = 2
	_defaultMaxIdleConns         = 2

	_preflightStatement = "SHOW VARIABLES WHERE " +
		"(Variable_name = 'log_bin' AND upper(Value) = 'ON') " +
		"OR (Variable_name = 'binlog_format' AND upper(Value) = 'ROW') " +
		"OR (Variable_name = 'binlog_row_image' AND upper(Value) = 'FULL') " +
		"OR (Variable_name = 'default_authentication_plugin' AND upper(Value) = 'MYSQL_NATIVE_PASSWORD')"
	_versionStatement      = "SELECT version()"
	_serverUUIDStatement   = "SELECT @@server_uuid"
	_masterStatusStatement = "SHOW MASTER STATUS"
	_masterLogsStatement   = "SHOW MASTER LOGS"
	_listTablesStatement   = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'"
)

type Config struct {
	Host            string `toml:"host"`
	Port            uint16 `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Database        string `toml:"database"`
	ConnMaxLifetime int    `toml:"conn_max_lifetime"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
}

func (c *Config) String() string {
	if c == nil {
		return ""
	}
	bytes, _ := json.Marshal(c)
	return string(bytes)
}

func (c *Config) WithDefault() *Config {
	if c.Port == 0 {
		c.Port = _defaultPort
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = _defaultConnMaxLifetime
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = _defaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = _defaultMaxIdleConns
	}
	return c
}

func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("source database must be set")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must less than max_open_conns")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns must not be negative")
	}
	return nil
}

func (c *Config) encodeDSN() string {
	return fmt.Sprintf(
		"%s:%s@%s(%s:%d)/%s",
		c.User, c.Password, _defaultNetwork, c.Host, c.Port, _defaultConnectDBName,
	)
}
