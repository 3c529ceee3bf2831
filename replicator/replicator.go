package replicator

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"

	"github.com/tsywkGo/go-mysql-materialize/replicator/buffer"
	"github.com/tsywkGo/go-mysql-materialize/replicator/matcher"
	"github.com/tsywkGo/go-mysql-materialize/replicator/matcher/common"
	"github.com/tsywkGo/go-mysql-materialize/replicator/matcher/defaultmatcher"
	"github.com/tsywkGo/go-mysql-materialize/replicator/meta"
	"github.com/tsywkGo/go-mysql-materialize/replicator/source"
	"github.com/tsywkGo/go-mysql-materialize/replicator/source/defaultsource"
	"github.com/tsywkGo/go-mysql-materialize/replicator/source/master"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target/sqlitetarget"
	"github.com/tsywkGo/go-mysql-materialize/replicator/translator"
	"github.com/tsywkGo/go-mysql-materialize/replicator/translator/defaulttranslator"
)

const (
	_serverIDBase  = 1001
	_serverIDRange = 1 << 16
)

// Replicator keeps one analytical database in sync with one MySQL schema. It
// owns the whole pipeline: snapshot bootstrap, binlog streaming, in-memory
// buffering and the atomic position commits.
type Replicator struct {
	// 同步配置
	cfg *Config

	// 源端管理
	database string
	master   *master.Master
	source   source.ISource

	// 目标端写入
	store target.ITarget

	// DDL翻译
	translator translator.ITranslator

	// 同步规则
	matcher matcher.IMatcher

	metadata   *meta.Metadata
	buffers    *buffer.Set
	thresholds buffer.Thresholds

	readTimeout  time.Duration
	maxFlushTime time.Duration
	maxWaitTime  time.Duration
	lastFlush    time.Time

	skippedDDL uint64

	errMu   sync.Mutex
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *Config) (*Replicator, error) {
	if err := cfg.WithDefault().Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	r := new(Replicator)
	r.cfg = cfg
	r.database = cfg.SourceConfig.MasterConfig.Database
	r.ctx, r.cancel = context.WithCancel(context.Background())

	var err error

	r.master, err = master.New(cfg.SourceConfig.MasterConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var storeOpts []sqlitetarget.Option
	if cfg.TargetConfig.Path != "" {
		storeOpts = append(storeOpts, sqlitetarget.WithPath(cfg.TargetConfig.Path))
	}
	r.store, err = sqlitetarget.New(storeOpts...)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r.matcher, err = defaultmatcher.New(
		defaultmatcher.WithIncludeRegex(cfg.MatcherConfig.IncludeRegex),
		defaultmatcher.WithExcludeRegex(cfg.MatcherConfig.ExcludeRegex),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r.translator = defaulttranslator.New()

	host, port, user, password := r.master.ReplicationConfig()
	r.source, err = defaultsource.New(defaultsource.WithEndpoint(host, port, user, password))
	if err != nil {
		return nil, errors.Trace(err)
	}

	r.thresholds = buffer.Thresholds{
		MaxBlockRows:  cfg.SyncConfig.MaxRowsInBuffer,
		MaxBlockBytes: cfg.SyncConfig.MaxBytesInBuffer,
		MaxTotalRows:  cfg.SyncConfig.MaxRowsInBuffers,
		MaxTotalBytes: cfg.SyncConfig.MaxBytesInBuffers,
	}
	r.maxFlushTime = time.Duration(cfg.SyncConfig.MaxFlushDataTime) * time.Millisecond
	r.readTimeout = r.maxFlushTime
	r.maxWaitTime = time.Duration(cfg.SyncConfig.MaxWaitTime) * time.Millisecond

	return r, nil
}

func (r *Replicator) Ctx() context.Context {
	return r.ctx
}

// Latency is the seconds the loop lags behind the master.
func (r *Replicator) Latency() uint32 {
	return r.source.Latency()
}

// SkippedDDL counts statements the translator could not express and the loop
// skipped after logging an error.
func (r *Replicator) SkippedDDL() uint64 {
	return atomic.LoadUint64(&r.skippedDDL)
}

// Err returns the error that terminated Run, if any.
func (r *Replicator) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	return r.lastErr
}

func (r *Replicator) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	if r.lastErr == nil {
		r.lastErr = err
	}
}

func (r *Replicator) Close() {
	log.Infof("closing replicator...")
	r.cancel()
	_ = r.source.Close()
	_ = r.store.Close()
	_ = r.master.Close()
}

// Run drives replication until Close or an unrecoverable error. A source
// connection lost while preparing is answered with a sleep of max_wait_time
// and a fresh attempt from the committed position; once streaming has begun,
// losing the connection terminates the run.
func (r *Replicator) Run() error {
	if err := r.prepareWithRetry(); err != nil {
		if r.cancelled(err) {
			return nil
		}
		r.setErr(err)
		return errors.Trace(err)
	}
	if r.ctx.Err() != nil {
		return nil
	}
	return r.stream()
}

// prepareWithRetry keeps attempting prepare while the source is merely
// unreachable. Any other failure goes back to the caller.
func (r *Replicator) prepareWithRetry() error {
	for {
		err := r.prepare()
		if err == nil || !r.retryable(err) {
			return err
		}
	}
}

func (r *Replicator) stream() error {
	err := r.loop()
	if err == nil || r.cancelled(err) {
		return nil
	}
	r.setErr(err)
	return errors.Trace(err)
}

// cancelled reports whether err is the result of Close rather than a
// replication failure.
func (r *Replicator) cancelled(err error) bool {
	return r.ctx.Err() != nil || errors.Cause(err) == context.Canceled
}

// retryable reports whether err is a source connectivity failure and, when it
// is, waits out max_wait_time before the caller tries again.
func (r *Replicator) retryable(err error) bool {
	if !isSourceUnavailable(err) || r.ctx.Err() != nil {
		return false
	}
	log.Warnf("source unavailable, retrying in %s: %s", r.maxWaitTime, err)

	timer := time.NewTimer(r.maxWaitTime)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
	case <-timer.C:
	}
	return r.ctx.Err() == nil
}

// prepare validates the source, loads or bootstraps the metadata, dumps the
// snapshot on first run and opens the binlog stream at the committed
// position.
func (r *Replicator) prepare() error {
	version, err := r.master.CheckSourceAndVersion()
	if err != nil {
		return errors.Trace(err)
	}
	log.Infof("source version %s ok", version)

	database := r.database
	metadata, snapshot, err := meta.LoadOrInit(r.master, r.cfg.TargetConfig.MetaDir, func(table string) bool {
		return r.matched(database, table)
	})
	if err != nil {
		return errors.Trace(err)
	}
	r.metadata = metadata

	if snapshot != nil {
		if err := r.dump(snapshot); err != nil {
			snapshot.Rollback()
			return errors.Trace(err)
		}
		if err := snapshot.Commit(); err != nil {
			return errors.Trace(err)
		}
	}

	r.buffers = buffer.NewSet(database)
	r.lastFlush = time.Now()

	serverID := uint32(_serverIDBase + rand.Intn(_serverIDRange))
	return errors.Trace(r.source.StartDump(serverID, database, r.metadata.Position()))
}

func (r *Replicator) loop() error {
	for r.ctx.Err() == nil {
		event, err := r.source.ReadOneEvent(r.readTimeout)
		if err != nil {
			return errors.Trace(err)
		}
		if event != nil {
			if err := r.onEvent(event); err != nil {
				return errors.Trace(err)
			}
		}
		if r.shouldFlush() {
			if err := r.flush(); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

func (r *Replicator) shouldFlush() bool {
	if r.buffers.Empty() {
		return false
	}
	return r.buffers.CheckThresholds(r.thresholds) || time.Since(r.lastFlush) >= r.maxFlushTime
}

// flush commits every buffered block to the store atomically with the current
// binlog position.
func (r *Replicator) flush() error {
	err := r.metadata.Transaction(r.source.Position(), func() error {
		return r.buffers.Commit(r.store)
	})
	r.lastFlush = time.Now()
	return errors.Trace(err)
}

func (r *Replicator) matched(database, table string) bool {
	return r.matcher.Match(database, table) != common.StateTypes.Filter
}
