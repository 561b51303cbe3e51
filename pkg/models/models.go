package models

// Domain models matching the workbook layout created by internal/repository/workbook.

// CellData is the physical back-reference of a record inside the workbook.
// Row is 1-based and counts the header, so the first data row is 2.
type CellData struct {
	Value  string `json:"value"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Cell   string `json:"cell"`
}

// Person is one roster record.
type Person struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	NickName   string    `json:"nickName,omitempty"`
	Position   string    `json:"position"`
	Department string    `json:"department"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	URL        string    `json:"url,omitempty"`
	Profile    []byte    `json:"-"`
	Metadata   *CellData `json:"metadata,omitempty"`
}

// FullName joins first and last name with a single space.
func (p Person) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Label is an entry of one of the enumerated lists (positions, departments).
type Label struct {
	Name     string    `json:"name"`
	Metadata *CellData `json:"metadata,omitempty"`
}

// Pagination describes the window returned by a roster query.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}
