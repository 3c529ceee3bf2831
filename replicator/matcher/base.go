package matcher

import "github.com/tsywkGo/go-mysql-materialize/replicator/matcher/common"

// IMatcher decides which source tables take part in materialization. Both
// the snapshot table enumeration and the streaming row events consult it.
type IMatcher interface {
	Match(dbName, tbName string) common.StateType
}
