package repository

import (
	"context"
	"errors"
	"io"

	"github.com/garnizeh/staffdir/pkg/models"
)

// Store adapter contracts. Consumers depend on these; the concrete workbook,
// object store and guard implementations live under internal/.

// ErrRowOutOfRange is returned when a row address points outside the data range.
var ErrRowOutOfRange = errors.New("row out of range")

// RosterStore is the tabular system of record for people and label lists.
type RosterStore interface {
	ListAll(ctx context.Context) ([]models.Person, error)
	ListPositions(ctx context.Context) ([]models.Label, error)
	ListDepartments(ctx context.Context) ([]models.Label, error)
	// AppendRow writes p after the last used row and returns the row it landed on.
	AppendRow(ctx context.Context, p *models.Person) (int, error)
	UpdateRow(ctx context.Context, row int, p *models.Person) error
	// ClearRow blanks the row without shifting the rows below it.
	ClearRow(ctx context.Context, row int) error
	// ReplaceRange clears the whole data range and rewrites it with people, in order.
	ReplaceRange(ctx context.Context, people []models.Person) error
}

// AssetStore holds binary profile photos addressed by opaque refs.
type AssetStore interface {
	CreateAsset(ctx context.Context, data []byte, mimeType, name string) (string, error)
	UpdateAsset(ctx context.Context, ref string, data []byte, mimeType string) (string, error)
	// RenameAsset is a soft delete: the asset is moved under an archive name.
	RenameAsset(ctx context.Context, ref, newName string) error
}

// ErrAssetNotFound is returned when a ref does not name a stored asset.
var ErrAssetNotFound = errors.New("asset not found")

// AssetReader is implemented by asset stores that can stream assets back.
type AssetReader interface {
	OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error)
}
