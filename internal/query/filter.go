// Package query composes list filters out of named predicates. Each
// predicate carries both an in-memory match function and the equivalent SQL
// fragment, so the same filter drives the memory and postgres repositories.
package query

import (
	"strconv"
	"strings"
)

type Predicate[T any] struct {
	Name   string
	Match  func(T) bool
	Clause string
	Args   []any
}

type Filter[T any] struct {
	predicates []Predicate[T]
	limit      int
}

func New[T any]() *Filter[T] {
	return &Filter[T]{}
}

// Where appends a predicate. Clause uses ? placeholders; they are renumbered
// when the filter is rendered with SQL.
func (f *Filter[T]) Where(name string, match func(T) bool, clause string, args ...any) *Filter[T] {
	f.predicates = append(f.predicates, Predicate[T]{Name: name, Match: match, Clause: clause, Args: args})
	return f
}

// WhereIf appends the predicate only when cond holds, which keeps optional
// request parameters out of the caller's control flow.
func (f *Filter[T]) WhereIf(cond bool, name string, match func(T) bool, clause string, args ...any) *Filter[T] {
	if !cond {
		return f
	}
	return f.Where(name, match, clause, args...)
}

func (f *Filter[T]) Limit(n int) *Filter[T] {
	if n > 0 {
		f.limit = n
	}
	return f
}

func (f *Filter[T]) LimitValue() int {
	if f == nil {
		return 0
	}
	return f.limit
}

func (f *Filter[T]) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.predicates))
	for _, p := range f.predicates {
		names = append(names, p.Name)
	}
	return names
}

// Matches reports whether every predicate accepts the item. A nil filter
// accepts everything.
func (f *Filter[T]) Matches(item T) bool {
	if f == nil {
		return true
	}
	for _, p := range f.predicates {
		if p.Match != nil && !p.Match(item) {
			return false
		}
	}
	return true
}

// Apply keeps the matching items in order and honours the limit.
func (f *Filter[T]) Apply(items []T) []T {
	result := make([]T, 0, len(items))
	for _, item := range items {
		if !f.Matches(item) {
			continue
		}
		result = append(result, item)
		if f.LimitValue() > 0 && len(result) >= f.LimitValue() {
			break
		}
	}
	return result
}

// SQL renders the predicates as a WHERE clause (without the keyword) joined
// by AND, with placeholders numbered from firstArg. An empty filter renders
// as "TRUE".
func (f *Filter[T]) SQL(firstArg int) (string, []any) {
	if f == nil || len(f.predicates) == 0 {
		return "TRUE", nil
	}
	next := firstArg
	clauses := make([]string, 0, len(f.predicates))
	args := make([]any, 0, len(f.predicates))
	for _, p := range f.predicates {
		if p.Clause == "" {
			continue
		}
		var b strings.Builder
		for _, r := range p.Clause {
			if r == '?' {
				b.WriteString("$" + strconv.Itoa(next))
				next++
				continue
			}
			b.WriteRune(r)
		}
		clauses = append(clauses, "("+b.String()+")")
		args = append(args, p.Args...)
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}
