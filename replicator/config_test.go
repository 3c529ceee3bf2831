package replicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const _testConfig = `
[source_config.master_config]
host = "127.0.0.1"
user = "repl"
password = "secret"
database = "shop"

[target_config]
meta_dir = "/var/lib/materialize"

[sync_config]
max_rows_in_buffer = 1000
max_wait_time_when_source_unavailable = 250

[matcher_config]
include_regex = "shop\\..*"
`

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(_testConfig)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "shop", cfg.SourceConfig.MasterConfig.Database)
	require.Equal(t, "/var/lib/materialize", cfg.TargetConfig.MetaDir)
	require.Equal(t, `shop\..*`, cfg.MatcherConfig.IncludeRegex)

	// Explicit keys survive, the rest fall back.
	require.Equal(t, 1000, cfg.SyncConfig.MaxRowsInBuffer)
	require.Equal(t, int64(250), cfg.SyncConfig.MaxWaitTime)
	require.Equal(t, _defaultMaxBlockBytes, cfg.SyncConfig.MaxBytesInBuffer)
	require.Equal(t, int64(_defaultMaxFlushDataTimeMS), cfg.SyncConfig.MaxFlushDataTime)
	require.Equal(t, _defaultDumpBlockSize, cfg.SyncConfig.DumpBlockSize)
}

func TestConfigValidate(t *testing.T) {
	cfg, err := NewConfig(`[target_config]` + "\nmeta_dir = \"/tmp/x\"\n")
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg, err = NewConfig(`[source_config.master_config]` + "\ndatabase = \"shop\"\n")
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}
