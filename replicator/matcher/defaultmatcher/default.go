package defaultmatcher

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/tsywkGo/go-mysql-materialize/replicator/matcher/common"
)

type Matcher struct {
	// IncludeRegex and ExcludeRegex match against "database.table".
	// A table replicates when it matches IncludeRegex and dismatches
	// ExcludeRegex. With no IncludeRegex configured every table of the
	// source database replicates unless excluded.
	// eg, IncludeRegex: [".*\\.orders"], ExcludeRegex: ["mysql\\..*"]
	IncludeRegex []*regexp.Regexp
	ExcludeRegex []*regexp.Regexp

	matchedSetMu sync.RWMutex
	matchedSet   map[string]common.StateType
}

func New(opts ...Option) (*Matcher, error) {
	matcher := new(Matcher)
	for _, opt := range opts {
		opt(matcher)
	}
	matcher.matchedSet = make(map[string]common.StateType)
	return matcher, nil
}

// 如果同时存在匹配与过滤，则过滤优先
func (m *Matcher) Match(dbName, tbName string) common.StateType {
	schemaName := m.encodeSchemaName(dbName, tbName)
	state := m.matchState(schemaName)
	if state != common.StateTypes.Default {
		return state
	}

	for _, reg := range m.ExcludeRegex {
		if reg.MatchString(schemaName) {
			m.updateMatchedSet(schemaName, common.StateTypes.Filter)
			return common.StateTypes.Filter
		}
	}

	// 未配置匹配规则时全量同步
	if len(m.IncludeRegex) == 0 {
		m.updateMatchedSet(schemaName, common.StateTypes.Matched)
		return common.StateTypes.Matched
	}

	for _, reg := range m.IncludeRegex {
		if reg.MatchString(schemaName) {
			m.updateMatchedSet(schemaName, common.StateTypes.Matched)
			return common.StateTypes.Matched
		}
	}

	m.updateMatchedSet(schemaName, common.StateTypes.Filter)
	return common.StateTypes.Filter
}

func (m *Matcher) encodeSchemaName(dbName, tbName string) string {
	return fmt.Sprintf("%s.%s", dbName, tbName)
}

func (m *Matcher) matchState(schemaName string) common.StateType {
	m.matchedSetMu.RLock()
	defer m.matchedSetMu.RUnlock()

	return m.matchedSet[schemaName]
}

func (m *Matcher) updateMatchedSet(schemaName string, state common.StateType) {
	m.matchedSetMu.Lock()
	defer m.matchedSetMu.Unlock()

	m.matchedSet[schemaName] = state
}
