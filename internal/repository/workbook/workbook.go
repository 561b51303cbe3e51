package workbook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository"
)

const (
	DirectorySheet   = "Directory"
	PositionsSheet   = "Positions"
	DepartmentsSheet = "Departments"

	firstDataRow = 2
	columns      = 9
)

var directoryHeader = []string{"id", "firstName", "lastName", "nickName", "position", "department", "email", "phone", "url"}

var (
	DefaultDepartments = []string{"IT", "Finance", "Engineering", "Marketing", "HR", "Sales", "Operations", "Design"}
	DefaultPositions   = []string{
		"Accountant", "Analyst", "CEO", "CFO", "COO", "CTO", "Developer",
		"Designer", "Engineer", "HR Manager", "IT Manager", "Manager", "Marketing", "Sales Rep",
	}
)

var _ repository.RosterStore = (*Store)(nil)

// Store is a RosterStore over a single .xlsx file. Reads open a fresh copy of
// the file; writes are serialised and replace the file atomically, so a
// failed write leaves the previous contents in place.
type Store struct {
	path string
	mu   sync.RWMutex
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Init creates the workbook when missing and makes sure every sheet exists
// with its header. Empty label sheets are seeded with the default lists.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), DirectorySheet); err != nil {
			return fmt.Errorf("name directory sheet: %w", err)
		}
	case err != nil:
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if err := ensureSheet(f, DirectorySheet, directoryHeader, nil); err != nil {
		return err
	}
	if err := ensureSheet(f, PositionsSheet, []string{"name"}, DefaultPositions); err != nil {
		return err
	}
	if err := ensureSheet(f, DepartmentsSheet, []string{"name"}, DefaultDepartments); err != nil {
		return err
	}
	if idx, err := f.GetSheetIndex(DirectorySheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return s.save(f)
}

func ensureSheet(f *excelize.File, name string, header, seed []string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("lookup sheet %s: %w", name, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", name, err)
	}
	if len(rows) == 0 {
		if err := writeRow(f, name, 1, header); err != nil {
			return err
		}
	}
	if len(rows) <= 1 {
		for i, v := range seed {
			if err := writeRow(f, name, firstDataRow+i, []string{v}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) view(ctx context.Context, fn func(f *excelize.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return fn(f)
}

func (s *Store) update(ctx context.Context, fn func(f *excelize.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	return s.save(f)
}

// save writes next to the target and renames over it.
func (s *Store) save(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".staffdir-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	name := tmp.Name()
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func cellData(value string, row int) *models.CellData {
	return &models.CellData{Value: value, Row: row, Column: 1, Cell: "A" + strconv.Itoa(row)}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (s *Store) ListAll(ctx context.Context) ([]models.Person, error) {
	var out []models.Person
	err := s.view(ctx, func(f *excelize.File) error {
		rows, err := f.GetRows(DirectorySheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", DirectorySheet, err)
		}
		out = make([]models.Person, 0, len(rows))
		for i := firstDataRow - 1; i < len(rows); i++ {
			r := rows[i]
			if blank(r) {
				continue
			}
			out = append(out, models.Person{
				ID:         cell(r, 0),
				FirstName:  cell(r, 1),
				LastName:   cell(r, 2),
				NickName:   cell(r, 3),
				Position:   cell(r, 4),
				Department: cell(r, 5),
				Email:      cell(r, 6),
				Phone:      cell(r, 7),
				URL:        cell(r, 8),
				Metadata:   cellData(cell(r, 0), i+1),
			})
		}
		return nil
	})
	return out, err
}

func (s *Store) ListPositions(ctx context.Context) ([]models.Label, error) {
	return s.listLabels(ctx, PositionsSheet)
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Label, error) {
	return s.listLabels(ctx, DepartmentsSheet)
}

func (s *Store) listLabels(ctx context.Context, sheet string) ([]models.Label, error) {
	var out []models.Label
	err := s.view(ctx, func(f *excelize.File) error {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", sheet, err)
		}
		out = make([]models.Label, 0, len(rows))
		for i := firstDataRow - 1; i < len(rows); i++ {
			name := strings.TrimSpace(cell(rows[i], 0))
			if name == "" {
				continue
			}
			out = append(out, models.Label{Name: name, Metadata: cellData(name, i+1)})
		}
		return nil
	})
	return out, err
}

func personRow(p *models.Person) []string {
	return []string{p.ID, p.FirstName, p.LastName, p.NickName, p.Position, p.Department, p.Email, p.Phone, p.URL}
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, start, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func checkRow(row int) error {
	if row < firstDataRow || row > excelize.TotalRows {
		return fmt.Errorf("row %d: %w", row, repository.ErrRowOutOfRange)
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, p *models.Person) (int, error) {
	var row int
	err := s.update(ctx, func(f *excelize.File) error {
		rows, err := f.GetRows(DirectorySheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", DirectorySheet, err)
		}
		row = max(len(rows)+1, firstDataRow)
		return writeRow(f, DirectorySheet, row, personRow(p))
	})
	if err != nil {
		return 0, err
	}
	return row, nil
}

func (s *Store) UpdateRow(ctx context.Context, row int, p *models.Person) error {
	if err := checkRow(row); err != nil {
		return err
	}
	return s.update(ctx, func(f *excelize.File) error {
		return writeRow(f, DirectorySheet, row, personRow(p))
	})
}

func (s *Store) ClearRow(ctx context.Context, row int) error {
	if err := checkRow(row); err != nil {
		return err
	}
	return s.update(ctx, func(f *excelize.File) error {
		return writeRow(f, DirectorySheet, row, make([]string, columns))
	})
}

func (s *Store) ReplaceRange(ctx context.Context, people []models.Person) error {
	return s.update(ctx, func(f *excelize.File) error {
		rows, err := f.GetRows(DirectorySheet)
		if err != nil {
			return fmt.Errorf("read %s: %w", DirectorySheet, err)
		}
		for i := range people {
			if err := writeRow(f, DirectorySheet, firstDataRow+i, personRow(&people[i])); err != nil {
				return err
			}
		}
		empty := make([]string, columns)
		for row := firstDataRow + len(people); row <= len(rows); row++ {
			if err := writeRow(f, DirectorySheet, row, empty); err != nil {
				return err
			}
		}
		return nil
	})
}
