package catalog

import (
	"strings"
)

const (
	DefaultLimit = 12
	MaxLimit     = 100
	MaxPage      = 100000 // keeps (page-1)*limit far from int overflow
	allCategory  = "all"
)

// listOrder is the public listing order: featured first, then most
// downloaded, then newest.
const listOrder = "is_featured DESC, downloads DESC, created_at DESC"

type Filter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// Normalize coerces page into [1, MaxPage] and limit into (0, MaxLimit].
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Predicate is a WHERE clause assembled from fixed fragments and the
// positional arguments bound to them, in order.
type Predicate struct {
	Clauses []string
	Args    []interface{}
}

func (p *Predicate) add(clause string, args ...interface{}) {
	p.Clauses = append(p.Clauses, clause)
	p.Args = append(p.Args, args...)
}

func (p Predicate) SQL() string {
	return strings.Join(p.Clauses, " AND ")
}

// BuildPredicate returns the public listing predicate for f. User input only
// ever appears in Args.
func BuildPredicate(f Filter) Predicate {
	var p Predicate
	p.add("is_active = ?", true)

	if f.Category != "" && !strings.EqualFold(f.Category, allCategory) {
		p.add("category = ?", f.Category)
	}
	if f.Search != "" {
		term := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		p.add(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(developer) LIKE ? ESCAPE '\')`, term, term, term)
	}
	return p
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// PageCount is ceil(total/limit).
func PageCount(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
