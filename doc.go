// Package cascade resolves dependent selections across an ordered hierarchy
// of levels, such as Country → State → Locality → Zip code.
//
// A Resolver tracks one selection state per level. Typed text is debounced
// per level before the Provider is queried for the children of the committed
// parent. Results are cached by (level, parent, folded query) and applied only
// while they are still current: a newer keystroke or a parent change
// supersedes any lookup in flight. Committing or clearing a level resets every
// level below it and drops their cached suggestions.
//
//	resolver, err := cascade.New(cascade.GeographicHierarchy(), provider,
//		cascade.WithDebounce(300*time.Millisecond),
//		cascade.WithLogger(logadapter.Zap(logger)),
//	)
//	resolver.Subscribe(func(change cascade.Change) { render(change.State) })
//	resolver.TextChanged(cascade.LevelCountry, "arg")
//
// Providers for REST APIs, PostgreSQL and in-memory fixtures live under
// provider/. Fetched entities can be filtered with an entity rule written in
// expr, CEL or (with the js_eval build tag) JavaScript.
package cascade
