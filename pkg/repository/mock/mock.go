package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Roster *RosterStore
	Assets *AssetStore
}

func NewMocks() *Mocks {
	return &Mocks{
		Roster: NewRosterStore(),
		Assets: NewAssetStore(),
	}
}

var (
	_ repository.RosterStore = (*RosterStore)(nil)
	_ repository.AssetStore  = (*AssetStore)(nil)
)

// RosterStore keeps rows in memory with the same addressing as the workbook:
// row 2 is the first data row and cleared rows stay as gaps.
type RosterStore struct {
	mu          sync.Mutex
	rows        []*models.Person
	Positions   []string
	Departments []string

	ListErr    error
	AppendErr  error
	UpdateErr  error
	ClearErr   error
	ReplaceErr error

	ListCalls    int
	LabelCalls   int
	ReplaceCalls int
}

func NewRosterStore() *RosterStore {
	return &RosterStore{
		Positions:   []string{"Developer", "Designer", "Manager"},
		Departments: []string{"Engineering", "Design", "Operations"},
	}
}

// Seed replaces the stored rows with people, in order.
func (m *RosterStore) Seed(people ...models.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = m.rows[:0]
	for i := range people {
		p := people[i]
		m.rows = append(m.rows, &p)
	}
}

// Rows returns the stored rows including cleared gaps as zero values.
func (m *RosterStore) Rows() []models.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Person, len(m.rows))
	for i, p := range m.rows {
		if p != nil {
			out[i] = *p
		}
	}
	return out
}

func (m *RosterStore) ListAll(ctx context.Context) ([]models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Person, 0, len(m.rows))
	for i, p := range m.rows {
		if p == nil {
			continue
		}
		row := i + 2
		cp := *p
		cp.Profile = nil
		cp.Metadata = &models.CellData{Value: p.ID, Row: row, Column: 1, Cell: "A" + strconv.Itoa(row)}
		out = append(out, cp)
	}
	return out, nil
}

func labels(names []string) []models.Label {
	out := make([]models.Label, 0, len(names))
	for i, n := range names {
		row := i + 2
		out = append(out, models.Label{Name: n, Metadata: &models.CellData{Value: n, Row: row, Column: 1, Cell: "A" + strconv.Itoa(row)}})
	}
	return out
}

func (m *RosterStore) ListPositions(ctx context.Context) ([]models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LabelCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return labels(m.Positions), nil
}

func (m *RosterStore) ListDepartments(ctx context.Context) ([]models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LabelCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return labels(m.Departments), nil
}

func (m *RosterStore) AppendRow(ctx context.Context, p *models.Person) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return 0, m.AppendErr
	}
	cp := *p
	cp.Metadata = nil
	m.rows = append(m.rows, &cp)
	return len(m.rows) + 1, nil
}

func (m *RosterStore) UpdateRow(ctx context.Context, row int, p *models.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	idx := row - 2
	if idx < 0 || idx >= len(m.rows) {
		return fmt.Errorf("update row %d: %w", row, repository.ErrRowOutOfRange)
	}
	cp := *p
	cp.Metadata = nil
	m.rows[idx] = &cp
	return nil
}

func (m *RosterStore) ClearRow(ctx context.Context, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	idx := row - 2
	if idx < 0 || idx >= len(m.rows) {
		return fmt.Errorf("clear row %d: %w", row, repository.ErrRowOutOfRange)
	}
	m.rows[idx] = nil
	return nil
}

func (m *RosterStore) ReplaceRange(ctx context.Context, people []models.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceCalls++
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	m.rows = m.rows[:0]
	for i := range people {
		cp := people[i]
		cp.Metadata = nil
		m.rows = append(m.rows, &cp)
	}
	return nil
}

// Asset is one stored blob.
type Asset struct {
	Name     string
	MimeType string
	Data     []byte
	Archived bool
}

// AssetStore keeps assets in memory keyed by a sequential ref.
type AssetStore struct {
	mu     sync.Mutex
	seq    int
	Assets map[string]*Asset

	CreateErr error
	UpdateErr error
	RenameErr error
}

func NewAssetStore() *AssetStore {
	return &AssetStore{Assets: map[string]*Asset{}}
}

// Get returns a copy of the asset stored under ref.
func (m *AssetStore) Get(ref string) (Asset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Assets[ref]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

func (m *AssetStore) CreateAsset(ctx context.Context, data []byte, mimeType, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.seq++
	ref := "asset-" + strconv.Itoa(m.seq)
	m.Assets[ref] = &Asset{Name: name, MimeType: mimeType, Data: data}
	return ref, nil
}

func (m *AssetStore) UpdateAsset(ctx context.Context, ref string, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return "", m.UpdateErr
	}
	a, ok := m.Assets[ref]
	if !ok {
		return "", fmt.Errorf("update %s: %w", ref, repository.ErrAssetNotFound)
	}
	a.Data = data
	a.MimeType = mimeType
	return ref, nil
}

func (m *AssetStore) RenameAsset(ctx context.Context, ref, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RenameErr != nil {
		return m.RenameErr
	}
	a, ok := m.Assets[ref]
	if !ok {
		return fmt.Errorf("archive %s: %w", ref, repository.ErrAssetNotFound)
	}
	a.Name = newName
	a.Archived = true
	return nil
}
