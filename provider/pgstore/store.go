// Package pgstore serves cascade lookups from PostgreSQL tables.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cascade "github.com/goliatone/go-cascade"
	"github.com/jackc/pgx/v5"
)

// ErrNoTable indicates a level without a configured table.
var ErrNoTable = errors.New("pgstore: no table for level")

// Querier is the subset of *pgxpool.Pool and *pgx.Conn used by Store.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Table maps a level onto a table. Empty optional columns are skipped.
type Table struct {
	Name           string
	IDColumn       string
	NameColumn     string
	ParentColumn   string
	CodeColumn     string
	DisabledColumn string
}

func (t Table) normalized() Table {
	if t.IDColumn == "" {
		t.IDColumn = "id"
	}
	if t.NameColumn == "" {
		t.NameColumn = "name"
	}
	return t
}

// PortalTables returns the portal schema keyed by the level names of
// cascade.GeographicHierarchy.
func PortalTables() map[string]Table {
	return map[string]Table{
		"country":  {Name: "countries"},
		"state":    {Name: "states", ParentColumn: "country_id"},
		"locality": {Name: "localities", ParentColumn: "state_id"},
		"zip_code": {Name: "zip_codes", NameColumn: "code", CodeColumn: "code", ParentColumn: "locality_id"},
	}
}

// ActivityTable lists professional activities, hiding disabled rows.
func ActivityTable() Table {
	return Table{Name: "activities", DisabledColumn: "disabled"}
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets or replaces the table for the level called name.
func WithTable(name string, table Table) Option {
	return func(s *Store) {
		s.tables[name] = table.normalized()
	}
}

// WithLimit caps the rows returned per lookup. Zero means no limit.
func WithLimit(limit int) Option {
	return func(s *Store) {
		if limit >= 0 {
			s.limit = limit
		}
	}
}

// WithUnaccent matches through the unaccent extension so folded queries
// find accented names.
func WithUnaccent(enabled bool) Option {
	return func(s *Store) {
		s.unaccent = enabled
	}
}

// Store is a cascade.Provider over PostgreSQL.
type Store struct {
	db        Querier
	hierarchy cascade.Hierarchy
	tables    map[string]Table
	limit     int
	unaccent  bool
}

// New builds a store for hierarchy. Tables default to PortalTables.
func New(db Querier, hierarchy cascade.Hierarchy, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pgstore: querier is required")
	}
	s := &Store{db: db, hierarchy: hierarchy, tables: map[string]Table{}}
	for name, table := range PortalTables() {
		s.tables[name] = table.normalized()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// FetchChildren implements cascade.Provider.
func (s *Store) FetchChildren(ctx context.Context, level cascade.Level, parentID *cascade.EntityID, query string) ([]cascade.Entity, error) {
	spec, ok := s.hierarchy.Spec(level)
	if !ok {
		return nil, fmt.Errorf("pgstore: level %d: %w", level, cascade.ErrUnknownLevel)
	}
	table, ok := s.tables[spec.Name]
	if !ok || table.Name == "" {
		return nil, fmt.Errorf("%w %q", ErrNoTable, spec.Name)
	}

	sql, args := s.build(table, parentID, cascade.NormalizeQuery(query))
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query %s: %w", table.Name, err)
	}
	entities, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan %s: %w", table.Name, err)
	}
	if entities == nil {
		entities = []cascade.Entity{}
	}
	return entities, nil
}

func (s *Store) build(table Table, parentID *cascade.EntityID, query string) (string, []any) {
	ident := func(name string) string { return pgx.Identifier{name}.Sanitize() }

	parentExpr, codeExpr := "NULL::text", "''"
	if table.ParentColumn != "" {
		parentExpr = ident(table.ParentColumn) + "::text"
	}
	if table.CodeColumn != "" {
		codeExpr = "COALESCE(" + ident(table.CodeColumn) + "::text, '')"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s::text, %s, %s, %s FROM %s",
		ident(table.IDColumn), ident(table.NameColumn), parentExpr, codeExpr, ident(table.Name))

	var where []string
	var args []any
	if table.ParentColumn != "" && parentID != nil {
		args = append(args, string(*parentID))
		where = append(where, fmt.Sprintf("%s::text = $%d", ident(table.ParentColumn), len(args)))
	}
	if query != "" {
		args = append(args, "%"+escapeLike(query)+"%")
		match := []string{s.ilike(ident(table.NameColumn), len(args))}
		if table.CodeColumn != "" && table.CodeColumn != table.NameColumn {
			match = append(match, s.ilike(ident(table.CodeColumn)+"::text", len(args)))
		}
		where = append(where, "("+strings.Join(match, " OR ")+")")
	}
	if table.DisabledColumn != "" {
		where = append(where, fmt.Sprintf("COALESCE(%s, 0) = 0", ident(table.DisabledColumn)))
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY %s", ident(table.NameColumn))
	if s.limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", s.limit)
	}
	return sb.String(), args
}

func (s *Store) ilike(column string, arg int) string {
	if s.unaccent {
		return fmt.Sprintf("unaccent(%s) ILIKE $%d", column, arg)
	}
	return fmt.Sprintf("%s ILIKE $%d", column, arg)
}

func scanEntity(row pgx.CollectableRow) (cascade.Entity, error) {
	var (
		id, name, code string
		parent         *string
	)
	if err := row.Scan(&id, &name, &parent, &code); err != nil {
		return cascade.Entity{}, err
	}
	out := cascade.Entity{ID: cascade.EntityID(id), DisplayName: name, Code: code}
	if parent != nil {
		out.ParentID = cascade.IDPtr(cascade.EntityID(*parent))
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
