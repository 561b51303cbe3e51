package roster

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/garnizeh/staffdir/pkg/models"
)

// SortField selects the comparator used by Query.
type SortField string

const (
	SortByID         SortField = "id"
	SortByName       SortField = "name"
	SortByDepartment SortField = "department"
	SortByPosition   SortField = "position"
)

// SortOrder is asc or desc. Anything else sorts ascending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// QueryParams are the inputs of a roster query.
type QueryParams struct {
	Page       int
	PageSize   int
	Search     string
	Department string
	Position   string
	SortBy     SortField
	SortOrder  SortOrder
}

// DefaultQueryParams returns page 1 of 10, sorted by id ascending, unfiltered.
func DefaultQueryParams() QueryParams {
	return QueryParams{Page: DefaultPage, PageSize: DefaultPageSize, SortBy: SortByID, SortOrder: Asc}
}

// ParseQueryParams reads query params from a URL query string. Malformed or
// non-positive numbers fall back to their defaults.
func ParseQueryParams(v url.Values) QueryParams {
	p := DefaultQueryParams()
	p.Page = positiveOr(v.Get("page"), DefaultPage)
	p.PageSize = positiveOr(v.Get("pageSize"), DefaultPageSize)
	p.Search = v.Get("search")
	p.Department = v.Get("department")
	p.Position = v.Get("position")
	if s := v.Get("sortBy"); s != "" {
		p.SortBy = SortField(s)
	}
	if o := v.Get("sortOrder"); o != "" {
		p.SortOrder = SortOrder(o)
	}
	return p
}

func positiveOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Result is one page of the filtered and sorted roster.
type Result struct {
	Data       []models.Person   `json:"data"`
	Pagination models.Pagination `json:"pagination"`
}

// Query filters, sorts and paginates all. It never mutates all and has no
// side effects. A page past the end yields empty data with the requested page
// number kept as is.
func Query(all []models.Person, p QueryParams) Result {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}

	terms := searchTerms(p.Search)
	matched := make([]models.Person, 0, len(all))
	for _, person := range all {
		if p.Department != "" && person.Department != p.Department {
			continue
		}
		if p.Position != "" && person.Position != p.Position {
			continue
		}
		if !Matches(person, terms) {
			continue
		}
		matched = append(matched, person)
	}

	slices.SortStableFunc(matched, comparator(p.SortBy, p.SortOrder))

	total := len(matched)
	totalPages := (total + p.PageSize - 1) / p.PageSize
	start := (p.Page - 1) * p.PageSize
	end := min(start+p.PageSize, total)

	data := []models.Person{}
	if start < total {
		data = matched[start:end]
	}

	return Result{
		Data: data,
		Pagination: models.Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    p.Page < totalPages,
			HasPrev:    p.Page > 1,
		},
	}
}

func searchTerms(search string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(search)))
}

// Matches reports whether every term is a substring of the first name, or
// every term of the last name, or every term of "first last". Terms are
// expected lower-cased; no terms matches everything.
func Matches(p models.Person, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	first := strings.ToLower(p.FirstName)
	last := strings.ToLower(p.LastName)
	full := strings.ToLower(p.FullName())
	return containsAll(first, terms) || containsAll(last, terms) || containsAll(full, terms)
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

func comparator(by SortField, order SortOrder) func(a, b models.Person) int {
	var cmp func(a, b models.Person) int
	switch by {
	case SortByName, SortByDepartment, SortByPosition:
		// collators keep internal buffers, one per query
		col := collate.New(language.Und)
		field := textField(by)
		cmp = func(a, b models.Person) int {
			return col.CompareString(field(a), field(b))
		}
	default:
		cmp = func(a, b models.Person) int {
			return CompareIDs(a.ID, b.ID)
		}
	}
	if order == Desc {
		return func(a, b models.Person) int { return -cmp(a, b) }
	}
	return cmp
}

func textField(by SortField) func(models.Person) string {
	switch by {
	case SortByDepartment:
		return func(p models.Person) string { return p.Department }
	case SortByPosition:
		return func(p models.Person) string { return p.Position }
	default:
		return func(p models.Person) string { return p.FirstName }
	}
}

// CompareIDs orders ids numerically by their leading integer. An id without
// one compares equal to anything.
func CompareIDs(a, b string) int {
	x, okA := LeadingInt(a)
	y, okB := LeadingInt(b)
	if !okA || !okB {
		return 0
	}
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// LeadingInt parses the optional sign and digits at the start of s, after
// leading whitespace. Trailing garbage is ignored ("12abc" is 12).
func LeadingInt(s string) (float64, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:j], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxID is the largest numeric id in people, 0 when none parse.
func MaxID(people []models.Person) int {
	maxID := 0
	for _, p := range people {
		if n, ok := LeadingInt(p.ID); ok && int(n) > maxID {
			maxID = int(n)
		}
	}
	return maxID
}
