package defaultmatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsywkGo/go-mysql-materialize/replicator/matcher/common"
)

func TestMatchAllByDefault(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	require.Equal(t, common.StateTypes.Matched, m.Match("shop", "orders"))
	require.Equal(t, common.StateTypes.Matched, m.Match("mysql", "user"))
}

func TestExcludeWins(t *testing.T) {
	m, err := New(
		WithIncludeRegex(`shop\..*`),
		WithExcludeRegex(`shop\.audit_.*`),
	)
	require.NoError(t, err)

	require.Equal(t, common.StateTypes.Matched, m.Match("shop", "orders"))
	require.Equal(t, common.StateTypes.Filter, m.Match("shop", "audit_log"))
	require.Equal(t, common.StateTypes.Filter, m.Match("mysql", "user"))
}

func TestMatchStateCached(t *testing.T) {
	m, err := New(WithIncludeRegex(`shop\.orders`))
	require.NoError(t, err)

	require.Equal(t, common.StateTypes.Filter, m.Match("shop", "other"))
	// The matched set now answers without consulting the regexps.
	m.IncludeRegex = nil
	require.Equal(t, common.StateTypes.Filter, m.Match("shop", "other"))
}

func TestBadRegexIgnored(t *testing.T) {
	m, err := New(WithIncludeRegex(`([bad`))
	require.NoError(t, err)
	require.Empty(t, m.IncludeRegex)
}
