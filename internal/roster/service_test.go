package roster_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/garnizeh/staffdir/internal/repository/workbook"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository/mock"
)

const prefix = "https://assets.example/p/"

type fakeQueue struct {
	mu    sync.Mutex
	refs  []string
	names []string
	err   error
}

func (q *fakeQueue) EnqueueArchive(ctx context.Context, ref, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.refs = append(q.refs, ref)
	q.names = append(q.names, name)
	return nil
}

func newDirectory(t *testing.T, m *mock.Mocks, q roster.ArchiveQueue) *roster.Directory {
	t.Helper()
	d, err := roster.NewDirectory(m.Roster, m.Assets, roster.Options{URLPrefix: prefix, Archive: q})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return d
}

func validPerson() models.Person {
	return models.Person{
		FirstName:  "Ana",
		LastName:   "Lee",
		Position:   "Developer",
		Department: "Engineering",
		Email:      "ana@example.com",
		Phone:      "09171234567",
	}
}

func pngUpload(t *testing.T) *roster.Upload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &roster.Upload{Data: buf.Bytes(), MimeType: "image/png"}
}

func TestNewDirectory_RequiresStores(t *testing.T) {
	if _, err := roster.NewDirectory(nil, mock.NewAssetStore(), roster.Options{}); err == nil {
		t.Fatalf("expected error without roster store")
	}
	if _, err := roster.NewDirectory(mock.NewRosterStore(), nil, roster.Options{}); err == nil {
		t.Fatalf("expected error without asset store")
	}
}

func TestAdd_AssignsNextID(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.Seed(models.Person{ID: "3", FirstName: "Old"}, models.Person{ID: "7", FirstName: "Older"})
	d := newDirectory(t, m, nil)

	got, err := d.Add(context.Background(), validPerson(), nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.ID != "8" {
		t.Fatalf("expected id 8, got %q", got.ID)
	}
	if got.Metadata == nil || got.Metadata.Row != 4 || got.Metadata.Cell != "A4" {
		t.Fatalf("unexpected metadata: %+v", got.Metadata)
	}
	if got.URL != "" {
		t.Fatalf("expected no photo url, got %q", got.URL)
	}
	rows := m.Roster.Rows()
	if len(rows) != 3 || rows[2].Email != "ana@example.com" {
		t.Fatalf("row not appended: %+v", rows)
	}
}

func TestAdd_ValidationFailsBeforeWriting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *models.Person)
		field  string
	}{
		{name: "short first name", mutate: func(p *models.Person) { p.FirstName = "A" }, field: "firstName"},
		{name: "empty last name", mutate: func(p *models.Person) { p.LastName = "" }, field: "lastName"},
		{name: "bad email", mutate: func(p *models.Person) { p.Email = "not-an-email" }, field: "email"},
		{name: "bad phone", mutate: func(p *models.Person) { p.Phone = "12345" }, field: "phone"},
		{name: "unknown position", mutate: func(p *models.Person) { p.Position = "Astronaut" }, field: "position"},
		{name: "missing department", mutate: func(p *models.Person) { p.Department = "" }, field: "department"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mock.NewMocks()
			d := newDirectory(t, m, nil)
			p := validPerson()
			tt.mutate(&p)

			_, err := d.Add(context.Background(), p, nil)
			var ve *roster.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Fatalf("expected field %q flagged, got %v", tt.field, ve.Fields)
			}
			if len(m.Roster.Rows()) != 0 || m.Roster.ListCalls != 0 {
				t.Fatalf("store touched on invalid input")
			}
		})
	}
}

func TestAdd_InternationalPhoneAndNoPhone(t *testing.T) {
	for _, phone := range []string{"+639171234567", ""} {
		m := mock.NewMocks()
		d := newDirectory(t, m, nil)
		p := validPerson()
		p.Phone = phone
		if _, err := d.Add(context.Background(), p, nil); err != nil {
			t.Fatalf("phone %q: %v", phone, err)
		}
	}
}

func TestAdd_WithPhoto(t *testing.T) {
	m := mock.NewMocks()
	d := newDirectory(t, m, nil)

	got, err := d.Add(context.Background(), validPerson(), pngUpload(t))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	ref := roster.RefFromURL(prefix, got.URL)
	a, ok := m.Assets.Get(ref)
	if !ok {
		t.Fatalf("asset %q not stored (url %q)", ref, got.URL)
	}
	if a.Name != "1_Ana_Lee" || a.MimeType != "image/png" {
		t.Fatalf("unexpected asset: %+v", a)
	}
}

func TestAdd_RejectsNonImage(t *testing.T) {
	m := mock.NewMocks()
	d := newDirectory(t, m, nil)

	_, err := d.Add(context.Background(), validPerson(), &roster.Upload{Data: []byte("plain text"), MimeType: "text/plain"})
	var ve *roster.ValidationError
	if !errors.As(err, &ve) || ve.Fields["profile"] == "" {
		t.Fatalf("expected profile validation error, got %v", err)
	}
	if len(m.Assets.Assets) != 0 {
		t.Fatalf("asset written for invalid upload")
	}
}

func TestAdd_RowFailureArchivesPhoto(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.AppendErr = errors.New("backend down")
	q := &fakeQueue{}
	d := newDirectory(t, m, q)

	if _, err := d.Add(context.Background(), validPerson(), pngUpload(t)); err == nil {
		t.Fatalf("expected error")
	}
	a, ok := m.Assets.Get("asset-1")
	if !ok || !a.Archived || a.Name != "deleted_1_Ana_Lee" {
		t.Fatalf("orphaned asset not archived: %+v", a)
	}
	if len(q.refs) != 0 {
		t.Fatalf("nothing should be queued when inline archive works")
	}
}

func TestAdd_RowAndArchiveFailureQueuesArchive(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.AppendErr = errors.New("backend down")
	m.Assets.RenameErr = errors.New("assets down")
	q := &fakeQueue{}
	d := newDirectory(t, m, q)

	if _, err := d.Add(context.Background(), validPerson(), pngUpload(t)); err == nil {
		t.Fatalf("expected error")
	}
	if len(q.refs) != 1 || q.refs[0] != "asset-1" || q.names[0] != "deleted_1_Ana_Lee" {
		t.Fatalf("expected queued archive, got %v %v", q.refs, q.names)
	}
}

func TestEdit(t *testing.T) {
	m := mock.NewMocks()
	ref, _ := m.Assets.CreateAsset(context.Background(), []byte("old"), "image/png", "2_Bo_Dee")
	m.Roster.Seed(
		models.Person{ID: "1", FirstName: "Ana"},
		models.Person{ID: "2", FirstName: "Bo", LastName: "Dee", URL: prefix + ref},
	)
	d := newDirectory(t, m, nil)

	in := validPerson()
	in.FirstName = "Bob"
	got, err := d.Edit(context.Background(), "2", in, nil)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.ID != "2" || got.URL != prefix+ref || got.Metadata.Row != 3 {
		t.Fatalf("unexpected edit result: %+v", got)
	}
	if rows := m.Roster.Rows(); rows[1].FirstName != "Bob" || rows[0].FirstName != "Ana" {
		t.Fatalf("wrong row updated: %+v", rows)
	}

	if _, err := d.Edit(context.Background(), "2", in, pngUpload(t)); err != nil {
		t.Fatalf("Edit with photo: %v", err)
	}
	if a, _ := m.Assets.Get(ref); bytes.Equal(a.Data, []byte("old")) {
		t.Fatalf("existing asset was not updated")
	}

	if _, err := d.Edit(context.Background(), "99", in, nil); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEdit_NewPhotoArchivedOnRowFailure(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.Seed(models.Person{ID: "1", FirstName: "Ana"})
	m.Roster.UpdateErr = errors.New("backend down")
	d := newDirectory(t, m, nil)

	if _, err := d.Edit(context.Background(), "1", validPerson(), pngUpload(t)); err == nil {
		t.Fatalf("expected error")
	}
	if a, ok := m.Assets.Get("asset-1"); !ok || !a.Archived {
		t.Fatalf("new asset not archived after failed row write: %+v", a)
	}
}

func TestEdit_MissingAssetGetsReplaced(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.Seed(models.Person{ID: "1", FirstName: "Ana", URL: "https://drive.google.com/uc?id=gone42"})
	d := newDirectory(t, m, nil)

	got, err := d.Edit(context.Background(), "1", validPerson(), pngUpload(t))
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.URL != prefix+"asset-1" {
		t.Fatalf("expected a fresh asset, got %q", got.URL)
	}
	if a, ok := m.Assets.Get("asset-1"); !ok || a.Name != "1_Ana_Lee" {
		t.Fatalf("unexpected asset %+v", a)
	}
}

func TestDelete(t *testing.T) {
	m := mock.NewMocks()
	ref, _ := m.Assets.CreateAsset(context.Background(), []byte("img"), "image/png", "2_Bo_Dee")
	m.Roster.Seed(
		models.Person{ID: "1", FirstName: "Ana"},
		models.Person{ID: "2", FirstName: "Bo", LastName: "Dee", URL: prefix + ref},
		models.Person{ID: "3", FirstName: "Cy"},
	)
	q := &fakeQueue{}
	d := newDirectory(t, m, q)
	ctx := context.Background()

	if err := d.Delete(ctx, "2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows := m.Roster.Rows()
	if len(rows) != 3 || rows[1].ID != "" || rows[2].ID != "3" {
		t.Fatalf("row not cleared in place: %+v", rows)
	}
	if a, _ := m.Assets.Get(ref); !a.Archived || a.Name != "deleted_2_Bo_Dee" {
		t.Fatalf("asset not archived: %+v", a)
	}

	all, err := d.PullAll(ctx)
	if err != nil {
		t.Fatalf("PullAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("cleared row should be skipped, got %d people", len(all))
	}

	if err := d.Delete(ctx, "2"); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_ClearFailureKeepsAsset(t *testing.T) {
	m := mock.NewMocks()
	ref, _ := m.Assets.CreateAsset(context.Background(), []byte("img"), "image/png", "1_Ana_Lee")
	m.Roster.Seed(models.Person{ID: "1", FirstName: "Ana", LastName: "Lee", URL: prefix + ref})
	m.Roster.ClearErr = errors.New("backend down")
	d := newDirectory(t, m, nil)

	if err := d.Delete(context.Background(), "1"); err == nil {
		t.Fatalf("expected error")
	}
	if a, _ := m.Assets.Get(ref); a.Archived {
		t.Fatalf("asset archived although row survived")
	}
}

func TestDelete_ArchiveFailureIsQueued(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.Seed(models.Person{ID: "1", FirstName: "Ana", LastName: "Lee", URL: "https://drive.google.com/uc?export=view&id=legacy123"})
	m.Assets.RenameErr = errors.New("assets down")
	q := &fakeQueue{}
	d := newDirectory(t, m, q)

	if err := d.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("Delete should succeed once the row is cleared: %v", err)
	}
	if len(q.refs) != 1 || q.refs[0] != "legacy123" {
		t.Fatalf("expected legacy ref queued, got %v", q.refs)
	}
}

func TestQuery_PullsFullRosterEveryTime(t *testing.T) {
	m := mock.NewMocks()
	m.Roster.Seed(numbered(15)...)
	d := newDirectory(t, m, nil)
	ctx := context.Background()

	p := roster.DefaultQueryParams()
	p.Page = 2
	for i := 0; i < 3; i++ {
		res, err := d.Query(ctx, p)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(res.Data) != 5 || res.Data[0].Metadata == nil {
			t.Fatalf("unexpected page: %+v", res.Data)
		}
	}
	if m.Roster.ListCalls != 3 {
		t.Fatalf("expected one pull per query, got %d", m.Roster.ListCalls)
	}

	m.Roster.ListErr = errors.New("backend down")
	if _, err := d.Query(ctx, p); err == nil {
		t.Fatalf("expected backend error")
	}
}

func TestLabels_Cached(t *testing.T) {
	m := mock.NewMocks()
	d, err := roster.NewDirectory(m.Roster, m.Assets, roster.Options{LabelTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := d.Positions(ctx); err != nil {
			t.Fatalf("Positions: %v", err)
		}
		if _, err := d.Departments(ctx); err != nil {
			t.Fatalf("Departments: %v", err)
		}
	}
	if m.Roster.LabelCalls != 2 {
		t.Fatalf("expected one load per list, got %d", m.Roster.LabelCalls)
	}
}

func TestAdd_ConcurrentAddsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	book := workbook.New(filepath.Join(t.TempDir(), "staffdir.xlsx"))
	if err := book.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	d, err := roster.NewDirectory(book, mock.NewAssetStore(), roster.Options{URLPrefix: prefix})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Add(ctx, validPerson(), nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Add: %v", err)
	}

	all, err := book.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d rows, got %d", n, len(all))
	}
	seen := map[string]bool{}
	for _, p := range all {
		if seen[p.ID] {
			t.Fatalf("id %s assigned twice", p.ID)
		}
		seen[p.ID] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[strconv.Itoa(i)] {
			t.Fatalf("id %d missing from %v", i, seen)
		}
	}
}
