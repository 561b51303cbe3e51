package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/garnizeh/staffdir/internal/photo"
	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository"
)

// package-level logger; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the roster package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

const (
	positionsKey   = "positions"
	departmentsKey = "departments"
)

// ArchiveQueue takes over archiving an asset that could not be archived inline.
type ArchiveQueue interface {
	EnqueueArchive(ctx context.Context, ref, name string) error
}

// Upload is a raw photo as received from a client.
type Upload struct {
	Data     []byte
	MimeType string
}

// Options configure a Directory.
type Options struct {
	URLPrefix      string
	LabelTTL       time.Duration
	MaxUploadBytes int
	Archive        ArchiveQueue
}

// Directory implements roster reads and the add, edit and delete flows on top
// of a RosterStore and an AssetStore. Writes that touch both stores run as a
// saga: a new asset whose row write fails is archived again, or queued for
// archiving when that fails too.
type Directory struct {
	store     repository.RosterStore
	assets    repository.AssetStore
	validator *Validator
	labels    *expirable.LRU[string, []models.Label]
	opts      Options

	// addMu makes reading the max id and appending the row one step
	addMu sync.Mutex
}

func NewDirectory(store repository.RosterStore, assets repository.AssetStore, opts Options) (*Directory, error) {
	if store == nil {
		return nil, errors.New("roster store is required")
	}
	if assets == nil {
		return nil, errors.New("asset store is required")
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = DefaultAssetURLPrefix
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	d := &Directory{store: store, assets: assets, validator: v, opts: opts}
	if opts.LabelTTL > 0 {
		d.labels = expirable.NewLRU[string, []models.Label](2, nil, opts.LabelTTL)
	}
	return d, nil
}

// PullAll fetches the complete roster. Every query starts from it.
func (d *Directory) PullAll(ctx context.Context) ([]models.Person, error) {
	all, err := d.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return all, nil
}

// Query pulls the full roster and computes the requested page in-process.
func (d *Directory) Query(ctx context.Context, p QueryParams) (Result, error) {
	all, err := d.PullAll(ctx)
	if err != nil {
		return Result{}, err
	}
	return Query(all, p), nil
}

func (d *Directory) Positions(ctx context.Context) ([]models.Label, error) {
	return d.cachedLabels(ctx, positionsKey, d.store.ListPositions)
}

func (d *Directory) Departments(ctx context.Context) ([]models.Label, error) {
	return d.cachedLabels(ctx, departmentsKey, d.store.ListDepartments)
}

func (d *Directory) cachedLabels(ctx context.Context, key string, load func(context.Context) ([]models.Label, error)) ([]models.Label, error) {
	if d.labels != nil {
		if v, ok := d.labels.Get(key); ok {
			return v, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	if d.labels != nil {
		d.labels.Add(key, v)
	}
	return v, nil
}

// Get returns the person with the given id.
func (d *Directory) Get(ctx context.Context, id string) (*models.Person, error) {
	all, err := d.PullAll(ctx)
	if err != nil {
		return nil, err
	}
	return findByID(all, id)
}

func findByID(all []models.Person, id string) (*models.Person, error) {
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

func (d *Directory) validate(ctx context.Context, p models.Person) error {
	positions, err := d.Positions(ctx)
	if err != nil {
		return err
	}
	departments, err := d.Departments(ctx)
	if err != nil {
		return err
	}
	return d.validator.Validate(ctx, p, positions, departments)
}

func (d *Directory) processUpload(up *Upload) ([]byte, string, error) {
	data, mime, err := photo.Process(up.Data, d.opts.MaxUploadBytes)
	switch {
	case err == nil:
		return data, mime, nil
	case errors.Is(err, photo.ErrEmpty), errors.Is(err, photo.ErrTooLarge),
		errors.Is(err, photo.ErrUnsupported), errors.Is(err, photo.ErrUndecodable),
		errors.Is(err, photo.ErrDimensions):
		return nil, "", NewValidationError("profile", err.Error())
	default:
		return nil, "", err
	}
}

// Add validates in, assigns it the next id and appends it. The photo, when
// given, is stored first so the row can reference it.
func (d *Directory) Add(ctx context.Context, in models.Person, up *Upload) (*models.Person, error) {
	in.Metadata = nil
	if err := d.validate(ctx, in); err != nil {
		return nil, err
	}

	var (
		data []byte
		mime string
	)
	if up != nil {
		var err error
		if data, mime, err = d.processUpload(up); err != nil {
			return nil, err
		}
	}

	d.addMu.Lock()
	defer d.addMu.Unlock()

	all, err := d.PullAll(ctx)
	if err != nil {
		return nil, err
	}
	in.ID = strconv.Itoa(MaxID(all) + 1)
	in.URL = ""

	var ref string
	if data != nil {
		ref, err = d.assets.CreateAsset(ctx, data, mime, AssetName(in.ID, in.FirstName, in.LastName))
		if err != nil {
			return nil, fmt.Errorf("create photo: %w", err)
		}
		in.URL = AssetURL(d.opts.URLPrefix, ref)
	}

	row, err := d.store.AppendRow(ctx, &in)
	if err != nil {
		if ref != "" {
			d.archive(ctx, ref, ArchivedAssetName(in.ID, in.FirstName, in.LastName))
		}
		return nil, fmt.Errorf("append person: %w", err)
	}

	in.Profile = nil
	in.Metadata = &models.CellData{Value: in.ID, Row: row, Column: 1, Cell: "A" + strconv.Itoa(row)}
	logger.Info("person added", slog.String("id", in.ID), slog.Int("row", row))
	return &in, nil
}

// Edit overwrites the person with the given id in place. Without a new photo
// the existing one is kept.
func (d *Directory) Edit(ctx context.Context, id string, in models.Person, up *Upload) (*models.Person, error) {
	in.ID = id
	in.Metadata = nil
	if err := d.validate(ctx, in); err != nil {
		return nil, err
	}

	var (
		data []byte
		mime string
	)
	if up != nil {
		var err error
		if data, mime, err = d.processUpload(up); err != nil {
			return nil, err
		}
	}

	current, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Metadata == nil {
		return nil, fmt.Errorf("person %s has no row reference", id)
	}
	row := current.Metadata.Row
	in.URL = current.URL

	var created string
	if data != nil {
		updated := ""
		if ref := RefFromURL(d.opts.URLPrefix, current.URL); ref != "" {
			updated, err = d.assets.UpdateAsset(ctx, ref, data, mime)
			if err != nil && !errors.Is(err, repository.ErrAssetNotFound) {
				return nil, fmt.Errorf("update photo: %w", err)
			}
		}
		if updated == "" {
			// no photo yet, or the referenced one is gone
			created, err = d.assets.CreateAsset(ctx, data, mime, AssetName(id, in.FirstName, in.LastName))
			if err != nil {
				return nil, fmt.Errorf("create photo: %w", err)
			}
			updated = created
		}
		in.URL = AssetURL(d.opts.URLPrefix, updated)
	}

	if err := d.store.UpdateRow(ctx, row, &in); err != nil {
		if created != "" {
			d.archive(ctx, created, ArchivedAssetName(id, in.FirstName, in.LastName))
		}
		return nil, fmt.Errorf("update person: %w", err)
	}

	in.Profile = nil
	in.Metadata = &models.CellData{Value: id, Row: row, Column: 1, Cell: "A" + strconv.Itoa(row)}
	logger.Info("person updated", slog.String("id", id), slog.Int("row", row))
	return &in, nil
}

// Delete clears the person's row, then archives the photo. The row is the
// source of truth, so a failed archive is queued rather than reported.
func (d *Directory) Delete(ctx context.Context, id string) error {
	current, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Metadata == nil {
		return fmt.Errorf("person %s has no row reference", id)
	}
	if err := d.store.ClearRow(ctx, current.Metadata.Row); err != nil {
		return fmt.Errorf("clear person: %w", err)
	}
	if ref := RefFromURL(d.opts.URLPrefix, current.URL); ref != "" {
		d.archive(ctx, ref, ArchivedAssetName(id, current.FirstName, current.LastName))
	}
	logger.Info("person deleted", slog.String("id", id), slog.Int("row", current.Metadata.Row))
	return nil
}

func (d *Directory) archive(ctx context.Context, ref, name string) {
	err := d.assets.RenameAsset(ctx, ref, name)
	if err == nil {
		return
	}
	logger.Warn("archive photo failed", slog.String("ref", ref), slog.Any("err", err))
	if d.opts.Archive == nil {
		logger.Error("photo left orphaned", slog.String("ref", ref))
		return
	}
	if qerr := d.opts.Archive.EnqueueArchive(context.WithoutCancel(ctx), ref, name); qerr != nil {
		logger.Error("queue photo archive", slog.String("ref", ref), slog.Any("err", qerr))
	}
}
