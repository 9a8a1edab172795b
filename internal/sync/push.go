package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
	"github.com/bradmartin/ksync/internal/query"
	"github.com/bradmartin/ksync/internal/remote"
	"github.com/bradmartin/ksync/internal/storage"
	"github.com/bradmartin/ksync/internal/store"
	"github.com/bradmartin/ksync/pkg/log"
	"github.com/rs/zerolog"
)

// Result is the per-record outcome of a push. EntityID is the id the
// record was enqueued under; for a device-local create the pushed
// entity carries the new server-assigned id while EntityID keeps the
// local one. Err is set when the remote refused or was unreachable.
type Result struct {
	EntityID string
	Entity   entity.Entity
	Err      error
}

// outcome pairs a result with the engine's disposition of the record.
type outcome struct {
	result    Result
	reinstate bool
}

// Engine drains the journal against the remote. It holds no persistent
// state of its own; every durable effect goes through the journal or
// the collection stores.
type Engine struct {
	journal *Journal
	adapter storage.Adapter
	client  *remote.Client
	batch   int
	logger  zerolog.Logger

	pushMu stdsync.Mutex
}

// NewEngine wires the push pipeline.
func NewEngine(journal *Journal, adapter storage.Adapter, client *remote.Client, cfg config.Config) *Engine {
	batch := cfg.PushBatchSize
	if batch <= 0 {
		batch = config.DefaultPushBatchSize
	}
	return &Engine{
		journal: journal,
		adapter: adapter,
		client:  client,
		batch:   batch,
		logger:  log.WithComponent("push"),
	}
}

// Push claims the matching journal records, coalesces them, and
// dispatches them in sequential batches of concurrent remote
// operations. Every record that survives coalescing yields exactly one
// Result; superseded records are dropped without a Result. Failures
// ride in the results, they are never returned as the call error.
// Records that failed transiently are reinstated in a single write.
//
// Push refuses to run concurrently with itself: a second call while one
// is in flight returns ErrPushInProgress.
func (e *Engine) Push(ctx context.Context, q *query.Query) ([]Result, error) {
	if !e.pushMu.TryLock() {
		return nil, ErrPushInProgress
	}
	defer e.pushMu.Unlock()

	claimed, err := e.journal.Drain(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return []Result{}, nil
	}
	recs := Coalesce(claimed)
	e.logger.Debug().Int("claimed", len(claimed)).Int("coalesced", len(recs)).Msg("push started")

	results := make([]Result, 0, len(recs))
	var reinstate []Record

	for start := 0; start < len(recs); start += e.batch {
		end := start + e.batch
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[start:end]
		outcomes := make([]outcome, len(batch))

		var wg stdsync.WaitGroup
		for i, rec := range batch {
			wg.Add(1)
			go func(i int, rec Record) {
				defer wg.Done()
				outcomes[i] = e.dispatch(ctx, rec)
			}(i, rec)
		}
		wg.Wait()

		for i, oc := range outcomes {
			results = append(results, oc.result)
			if oc.reinstate {
				reinstate = append(reinstate, batch[i])
			}
		}
	}

	if err := e.journal.Reinstate(ctx, reinstate); err != nil {
		return results, err
	}
	e.logger.Info().Int("pushed", len(results)-len(reinstate)).
		Int("reinstated", len(reinstate)).Msg("push finished")
	return results, nil
}

// dispatch performs one record's remote operation and classifies the
// outcome. Terminal states: acknowledged (success, local mirrored),
// repaired (credential error, local restored from remote, record
// dropped), reinstated (transient error, record back in the journal),
// abandoned (unrecognized method, record dropped with an error result).
func (e *Engine) dispatch(ctx context.Context, rec Record) outcome {
	switch rec.Method {
	case MethodCreateOrUpdate:
		return e.dispatchWrite(ctx, rec)
	case MethodDelete:
		return e.dispatchDelete(ctx, rec)
	default:
		return outcome{result: Result{
			EntityID: rec.EntityID,
			Entity:   rec.Entity,
			Err:      fmt.Errorf("%w: %q", ErrUnknownMethod, rec.Method),
		}}
	}
}

func (e *Engine) dispatchWrite(ctx context.Context, rec Record) outcome {
	if rec.Entity.IsLocal() {
		created, err := e.client.Create(ctx, rec.Collection, rec.Entity.StripLocal())
		if err != nil {
			return e.classifyFailure(ctx, rec, err)
		}
		// The local row moves from the device id to the server id.
		if err := e.relocateLocal(ctx, rec, created); err != nil {
			e.logger.Warn().Err(err).Str("entity_id", rec.EntityID).Msg("local relocate after create failed")
		}
		return outcome{result: Result{EntityID: rec.EntityID, Entity: created}}
	}

	updated, err := e.client.Update(ctx, rec.Collection, rec.EntityID, rec.Entity)
	if err != nil {
		return e.classifyFailure(ctx, rec, err)
	}
	if err := e.writeLocal(ctx, rec.Collection, updated); err != nil {
		e.logger.Warn().Err(err).Str("entity_id", rec.EntityID).Msg("local mirror after update failed")
	}
	return outcome{result: Result{EntityID: rec.EntityID, Entity: updated}}
}

func (e *Engine) dispatchDelete(ctx context.Context, rec Record) outcome {
	err := e.client.Delete(ctx, rec.Collection, rec.EntityID)
	if err == nil || errors.Is(err, remote.ErrNotFound) {
		// Remote already absent counts as done; nothing to reinstate.
		return outcome{result: Result{EntityID: rec.EntityID, Entity: rec.Entity}}
	}
	return e.classifyFailure(ctx, rec, err)
}

// classifyFailure decides the terminal state of a failed record.
// Credential errors cannot be cured by retrying, so the record is
// dropped after an attempt to repair local state from the remote's
// truth. Everything else is transient and reinstated verbatim.
func (e *Engine) classifyFailure(ctx context.Context, rec Record, err error) outcome {
	if errors.Is(err, remote.ErrInsufficientCredentials) {
		e.repair(ctx, rec)
		return outcome{result: Result{EntityID: rec.EntityID, Entity: rec.Entity, Err: err}}
	}
	return outcome{
		result:    Result{EntityID: rec.EntityID, Entity: rec.Entity, Err: err},
		reinstate: true,
	}
}

// repair restores the local row to the remote's currently-observed
// state after an authorization error. Device-local entities have
// nothing on the server to consult, so they are skipped. Repair
// failures never surface to the caller.
func (e *Engine) repair(ctx context.Context, rec Record) {
	if rec.Entity.IsLocal() {
		return
	}
	current, err := e.client.Get(ctx, rec.Collection, rec.EntityID)
	if err != nil {
		e.logger.Debug().Err(err).Str("entity_id", rec.EntityID).Msg("repair read failed")
		return
	}
	if err := e.writeLocal(ctx, rec.Collection, current); err != nil {
		e.logger.Debug().Err(err).Str("entity_id", rec.EntityID).Msg("repair write failed")
	}
}

// relocateLocal mirrors a successful create of a device-local entity:
// the returned doc lands under the server-assigned id and the row under
// the device id is removed.
func (e *Engine) relocateLocal(ctx context.Context, rec Record, created entity.Entity) error {
	if err := e.writeLocal(ctx, rec.Collection, created); err != nil {
		return err
	}
	err := e.adapter.RemoveByID(ctx, rec.Collection, rec.EntityID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) writeLocal(ctx context.Context, collection string, doc entity.Entity) error {
	if doc == nil || doc.ID() == "" {
		return nil
	}
	st, err := store.New(e.adapter, collection)
	if err != nil {
		return err
	}
	_, err = st.Save(ctx, doc)
	return err
}
