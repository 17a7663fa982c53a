package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-cascade/pkg/activity"
)

// Provider fetches the entities of level that belong to parentID and match
// query. parentID is nil at the root level and for direct searches. Query is
// already normalized; an empty query asks for the initial list.
type Provider interface {
	FetchChildren(ctx context.Context, level Level, parentID *EntityID, query string) ([]Entity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, level Level, parentID *EntityID, query string) ([]Entity, error)

// FetchChildren implements Provider.
func (f ProviderFunc) FetchChildren(ctx context.Context, level Level, parentID *EntityID, query string) ([]Entity, error) {
	return f(ctx, level, parentID, query)
}

type levelState struct {
	committed   *Entity
	rawText     string
	suggestions []Entity
	loading     bool
	// seq increases on every transition that invalidates in-flight lookups.
	seq uint64
}

// ticket identifies one dispatched lookup. Its result is applied only while
// the level's seq and parent still match.
type ticket struct {
	level  Level
	seq    uint64
	parent *EntityID
	query  string
}

// Resolver keeps the selection state of a hierarchy of dependent pickers.
// All methods are safe for concurrent use.
type Resolver struct {
	hierarchy Hierarchy
	provider  Provider
	cache     *SuggestionCache
	debouncer *debouncer
	logger    LookupLogger
	emitter   *activity.Emitter
	rule      *entityRule
	max       int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	levels  []levelState
	subs    map[uint64]func(Change)
	nextSub uint64
	closed  bool
}

// New builds a resolver for hierarchy backed by provider.
func New(hierarchy Hierarchy, provider Provider, opts ...Option) (*Resolver, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if hierarchy.Len() == 0 {
		return nil, fmt.Errorf("cascade: hierarchy has no levels: %w", ErrUnknownLevel)
	}
	cfg := applyOptions(opts)
	rule, err := compileEntityRule(cfg.ruleEvaluator, cfg.ruleExpr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		hierarchy: hierarchy,
		provider:  provider,
		cache:     cfg.cache,
		debouncer: newDebouncer(cfg.clock, cfg.debounce),
		logger:    cfg.logger,
		emitter:   cfg.activity.emitter(),
		rule:      rule,
		max:       cfg.maxSuggestions,
		ctx:       ctx,
		cancel:    cancel,
		levels:    make([]levelState, hierarchy.Len()),
		subs:      make(map[uint64]func(Change)),
	}, nil
}

// Hierarchy returns the hierarchy the resolver was built with.
func (r *Resolver) Hierarchy() Hierarchy {
	return r.hierarchy
}

// Cache returns the suggestion cache in use.
func (r *Resolver) Cache() *SuggestionCache {
	return r.cache
}

// Subscribe registers fn to receive every applied transition. Calls happen
// outside the resolver lock, so fn may call back into the resolver. Changes
// of different levels may be observed out of order; State is authoritative.
func (r *Resolver) Subscribe(fn func(Change)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// TextChanged records raw input for level and schedules a debounced lookup.
// Typing over a committed entity drops the commitment and clears every
// dependent level.
func (r *Resolver) TextChanged(level Level, text string) error {
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return err
	}
	st := &r.levels[level]
	var changes []Change
	if st.committed != nil {
		if text == st.committed.DisplayName {
			r.mu.Unlock()
			return nil
		}
		st.committed = nil
		cascaded, _ := r.cascadeLocked(level)
		changes = append(changes, cascaded...)
	}
	st.rawText = text
	st.loading = false
	st.seq++
	changes = append([]Change{r.changeLocked(level, ReasonTyped)}, changes...)
	r.debouncer.schedule(level, func() { r.dispatch(level, false) })
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, changes)
	return nil
}

// Focus fetches suggestions for level right away using its current text, or
// the initial list when the level is empty or committed. Dependent levels
// without a committed parent get an empty list and no fetch.
func (r *Resolver) Focus(level Level) error {
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()
	r.debouncer.cancel(level)
	r.dispatch(level, true)
	return nil
}

// DirectSearch queries level without a parent and returns the matches. It
// never touches selection state; used for postal code lookups by raw code.
// Only the root and Independent levels can be searched this way.
func (r *Resolver) DirectSearch(ctx context.Context, level Level, query string) ([]Entity, error) {
	r.mu.Lock()
	if err := r.checkLocked(level); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if level > 0 && !r.hierarchy.levels[level].Independent {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDependentLevel, r.hierarchy.name(level))
	}
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	key := NewCacheKey(level, nil, query)
	result, err := r.fetch(ctx, key)
	event := r.logEvent(key, started, result, err)
	event.Direct = true

	if err == nil && !result.hit {
		r.mu.Lock()
		if !r.closed {
			r.cache.put(key, result.entities)
		}
		r.mu.Unlock()
	}
	r.logger.LogLookup(event)
	if err != nil {
		r.emitLookupFailed(key, err)
		return nil, err
	}
	return cloneEntities(r.visible(result.entities)), nil
}

// State returns a snapshot of level.
func (r *Resolver) State(level Level) (SelectionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(level); err != nil {
		return SelectionState{}, err
	}
	return r.snapshotLocked(level), nil
}

// States returns snapshots of every level, root first. Nil after Close.
func (r *Resolver) States() []SelectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	out := make([]SelectionState, len(r.levels))
	for i := range r.levels {
		out[i] = r.snapshotLocked(Level(i))
	}
	return out
}

// Selected returns the entity committed at level.
func (r *Resolver) Selected(level Level) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.hierarchy.valid(level) || r.levels[level].committed == nil {
		return Entity{}, false
	}
	return r.levels[level].committed.Clone(), true
}

// Path returns the committed entities in level order, root first.
func (r *Resolver) Path() []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entity
	for _, st := range r.levels {
		if st.committed != nil {
			out = append(out, st.committed.Clone())
		}
	}
	return out
}

// Filter returns the committed ids keyed by each level's filter key, e.g.
// {"country": "AR", "province": "AR-C"} for a zone filter request.
func (r *Resolver) Filter() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for i, st := range r.levels {
		if st.committed == nil {
			continue
		}
		out[r.hierarchy.levels[i].filterKey()] = string(st.committed.ID)
	}
	return out
}

// Close cancels pending timers and in-flight lookups and waits for them to
// return. Further calls fail with ErrClosed.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for i := range r.levels {
		r.levels[i] = levelState{seq: r.levels[i].seq + 1}
	}
	r.subs = make(map[uint64]func(Change))
	r.mu.Unlock()

	r.debouncer.stop()
	r.cancel()
	r.wg.Wait()
	return nil
}

// dispatch starts a lookup for level with its current text. force is set by
// Focus, which ignores a committed entity's text.
func (r *Resolver) dispatch(level Level, force bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	st := &r.levels[level]
	parent, ok := r.parentLocked(level)
	if !ok {
		st.seq++
		st.loading = false
		st.suggestions = []Entity{}
		change := r.changeLocked(level, ReasonSuggestions)
		subs := r.subscribersLocked()
		r.mu.Unlock()
		publish(subs, []Change{change})
		return
	}

	query := st.rawText
	if force && st.committed != nil {
		query = ""
	}
	st.seq++
	st.loading = true
	t := ticket{level: level, seq: st.seq, parent: parent, query: NormalizeQuery(query)}
	change := r.changeLocked(level, ReasonLoading)
	subs := r.subscribersLocked()
	r.wg.Add(1)
	r.mu.Unlock()

	publish(subs, []Change{change})
	go r.lookup(t)
}

func (r *Resolver) lookup(t ticket) {
	defer r.wg.Done()

	started := time.Now()
	key := NewCacheKey(t.level, t.parent, t.query)
	result, err := r.fetch(r.ctx, key)
	event := r.logEvent(key, started, result, err)

	r.mu.Lock()
	if r.closed || !r.currentLocked(t) {
		r.mu.Unlock()
		event.Stale = true
		r.logger.LogLookup(event)
		return
	}
	st := &r.levels[t.level]
	st.loading = false
	reason := ReasonSuggestions
	if err != nil {
		st.suggestions = []Entity{}
		reason = ReasonLookupFailed
	} else {
		entities, ok := scoped(t.parent, result.entities)
		if ok && !result.hit {
			r.cache.put(key, entities)
		}
		st.suggestions = r.visible(entities)
	}
	change := r.changeLocked(t.level, reason)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	r.logger.LogLookup(event)
	publish(subs, []Change{change})
	if err != nil {
		r.emitLookupFailed(key, err)
	}
}

type fetchResult struct {
	entities []Entity
	rejected int
	hit      bool
}

// fetch serves key from the cache or the provider. Provider results are
// sanitized, scoped to the parent, filtered by the entity rule and ordered by
// relevance. Nothing is written to the cache here.
func (r *Resolver) fetch(ctx context.Context, key CacheKey) (fetchResult, error) {
	var parent *EntityID
	if key.HasParent {
		parent = IDPtr(key.ParentID)
	}
	var result fetchResult
	entities, hit, err := r.cache.load(ctx, key, func(ctx context.Context) ([]Entity, error) {
		raw, err := r.provider.FetchChildren(ctx, key.Level, parent, key.Query)
		if err != nil {
			return nil, wrapLookupError(r.hierarchy, key.Level, parent, key.Query, err)
		}
		kept, rejected := r.process(key.Level, parent, key.Query, raw)
		result.rejected = rejected
		return kept, nil
	})
	if err != nil {
		return fetchResult{}, wrapLookupError(r.hierarchy, key.Level, parent, key.Query, err)
	}
	result.entities = entities
	result.hit = hit
	return result, nil
}

func (r *Resolver) process(level Level, parent *EntityID, query string, raw []Entity) ([]Entity, int) {
	kept := make([]Entity, 0, len(raw))
	rejected := 0
	levelName := r.hierarchy.name(level)
	for _, entity := range raw {
		if entity.malformed() {
			rejected++
			continue
		}
		entity = entity.Clone()
		if level > 0 && parent != nil {
			if entity.ParentID == nil {
				entity.ParentID = IDPtr(*parent)
			} else if *entity.ParentID != *parent {
				rejected++
				continue
			}
		}
		keep, err := r.rule.accept(RuleContext{
			Entity:    entity,
			Level:     level,
			LevelName: levelName,
			ParentID:  parent,
			Query:     query,
		})
		if err != nil || !keep {
			rejected++
			continue
		}
		kept = append(kept, entity)
	}
	return orderByRelevance(kept, query), rejected
}

// scoped drops entities that do not belong to parent. ok is false when any
// entity was dropped.
func scoped(parent *EntityID, entities []Entity) ([]Entity, bool) {
	if parent == nil {
		return entities, true
	}
	out := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		if entity.ChildOf(parent) {
			out = append(out, entity)
		}
	}
	return out, len(out) == len(entities)
}

func (r *Resolver) visible(entities []Entity) []Entity {
	if entities == nil {
		return []Entity{}
	}
	if r.max > 0 && len(entities) > r.max {
		return entities[:r.max]
	}
	return entities
}

func (r *Resolver) logEvent(key CacheKey, started time.Time, result fetchResult, err error) LookupLogEvent {
	event := LookupLogEvent{
		Level:    key.Level,
		Name:     r.hierarchy.name(key.Level),
		Query:    key.Query,
		Duration: time.Since(started),
		Results:  len(result.entities),
		Rejected: result.rejected,
		CacheHit: result.hit,
		Err:      err,
	}
	if key.HasParent {
		event.ParentID = IDPtr(key.ParentID)
	}
	return event
}

func (r *Resolver) emitLookupFailed(key CacheKey, err error) {
	input := r.eventInput(key.Level)
	if key.HasParent {
		input.ParentID = string(key.ParentID)
	}
	input.Query = key.Query
	input.Err = err
	emitActivity(r.emitter, activity.BuildLookupFailedEvent(input))
}

func (r *Resolver) eventInput(level Level) activity.SelectionEventInput {
	return activity.SelectionEventInput{
		Level:     int(level),
		LevelName: r.hierarchy.name(level),
	}
}

func (r *Resolver) checkLocked(level Level) error {
	if r.closed {
		return ErrClosed
	}
	if !r.hierarchy.valid(level) {
		return fmt.Errorf("cascade: level %d: %w", level, ErrUnknownLevel)
	}
	return nil
}

// parentLocked returns the id lookups at level are scoped to. ok is false
// when level depends on a parent that is not committed.
func (r *Resolver) parentLocked(level Level) (*EntityID, bool) {
	if level == 0 {
		return nil, true
	}
	if committed := r.levels[level-1].committed; committed != nil {
		return IDPtr(committed.ID), true
	}
	return nil, r.hierarchy.levels[level].Independent
}

func (r *Resolver) currentLocked(t ticket) bool {
	if r.levels[t.level].seq != t.seq {
		return false
	}
	parent, ok := r.parentLocked(t.level)
	return ok && sameID(parent, t.parent)
}

func (r *Resolver) snapshotLocked(level Level) SelectionState {
	st := r.levels[level]
	out := SelectionState{
		Level:       level,
		Name:        r.hierarchy.name(level),
		RawText:     st.rawText,
		Suggestions: cloneEntities(st.suggestions),
		Loading:     st.loading,
	}
	if st.committed != nil {
		committed := st.committed.Clone()
		out.Committed = &committed
	}
	return out
}

func (r *Resolver) changeLocked(level Level, reason ChangeReason) Change {
	return Change{Level: level, State: r.snapshotLocked(level), Reason: reason}
}

func (r *Resolver) subscribersLocked() []func(Change) {
	if len(r.subs) == 0 {
		return nil
	}
	out := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []func(Change), changes []Change) {
	for _, change := range changes {
		for _, fn := range subs {
			fn(change)
		}
	}
}
