package services

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

// spyStore counts every call that reaches the content store.
type spyStore struct {
	media.Store
	mu    sync.Mutex
	calls int
}

func (s *spyStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStore) RelPath(a media.AssetType, name string) string {
	s.hit()
	return s.Store.RelPath(a, name)
}

func (s *spyStore) ResizedRelPath(w int, name string) string {
	s.hit()
	return s.Store.ResizedRelPath(w, name)
}

func (s *spyStore) FullPath(rel string) (string, error) {
	s.hit()
	return s.Store.FullPath(rel)
}

func (s *spyStore) Exists(rel string) bool {
	s.hit()
	return s.Store.Exists(rel)
}

func (s *spyStore) Delete(rel string) error {
	s.hit()
	return s.Store.Delete(rel)
}

type testEnv struct {
	cfg        config.Config
	local      *media.LocalStorage
	store      media.Store
	uploads    *repository.UploadRepository
	composites *repository.CompositeRepository
	sweeper    *Sweeper
	uploadSvc  *UploadService
	compSvc    *CompositeService
	clock      *fakeClock
	events     *recordingNotifier
}

func testConfig(root string) config.Config {
	return config.Config{
		StorageRoot:    root,
		DataDir:        filepath.Join(root, config.DefaultDataSubDir),
		Retention:      48 * time.Hour,
		MaxUploadBytes: 1 << 20,
		MaxUploadFiles: 15,
		ResizeWidths:   []int{1280, 1920, 2440},
		PreviewWidth:   320,
		SplitWidth:     1280,
		SplitHeight:    720,
		DividerWidth:   7,
		TrashTemplate:  filepath.Join(root, "no-template.png"),
		ListLimit:      200,
	}
}

// processorDims decodes the size of a content file the way the services do.
func (e *testEnv) processorDims(rel string) (int, int, bool) {
	return media.NewProcessor(e.store, silent()).DecodeDimensions(rel)
}

func silent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore builds the services over a temp storage root. wrap, when set,
// decorates the content store seen by the services.
func newTestEnvWithStore(t *testing.T, wrap func(media.Store) media.Store) *testEnv {
	t.Helper()
	logger := silent()
	root := t.TempDir()
	cfg := testConfig(root)

	local, err := media.NewLocalStorage(root, media.DefaultSubDirs(), logger)
	if err != nil {
		t.Fatal(err)
	}
	var store media.Store = local
	if wrap != nil {
		store = wrap(local)
	}

	uploads := repository.NewUploadRepository(database.NewCollection[models.UploadRecord](
		filepath.Join(cfg.DataDir, config.HistoryFileName), database.NewLock("history"), logger))
	composites := repository.NewCompositeRepository(database.NewCollection[models.CompositeRecord](
		filepath.Join(cfg.DataDir, config.CompositesFileName), database.NewLock("composites"), logger))

	clock := &fakeClock{t: time.Date(2026, 1, 10, 11, 22, 33, 123_000_000, time.UTC)}
	events := &recordingNotifier{}
	processor := media.NewProcessor(store, logger)
	cleaner := NewCleaner(store, composites, cfg.ResizeWidths, logger)
	sweeper := NewSweeper(uploads, composites, store, cleaner, cfg.Retention, config.LegacyWidthMigrations, logger).WithClock(clock.Now)

	uploadSvc := NewUploadService(cfg, uploads, store, processor, sweeper, cleaner, events, logger)
	uploadSvc.now = clock.Now
	compSvc := NewCompositeService(cfg, composites, store, processor, sweeper, cleaner, events, logger)
	compSvc.now = clock.Now

	return &testEnv{
		cfg:        cfg,
		local:      local,
		store:      store,
		uploads:    uploads,
		composites: composites,
		sweeper:    sweeper,
		uploadSvc:  uploadSvc,
		compSvc:    compSvc,
		clock:      clock,
		events:     events,
	}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fileOf(name string, data []byte) UploadFile {
	return UploadFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// uploadImage stores one w x h PNG and returns its record.
func (e *testEnv) uploadImage(t *testing.T, name string, w, h int) models.UploadRecord {
	t.Helper()
	recs, err := e.uploadSvc.Upload(context.Background(), []UploadFile{fileOf(name, pngBytes(t, w, h, color.NRGBA{R: 200, A: 255}))})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return recs[0]
}

func (e *testEnv) splitOf(t *testing.T, a, b string) CompositeResult {
	t.Helper()
	full := media.ViewRect{W: 100, H: 100, ViewW: 100, ViewH: 100}
	res, err := e.compSvc.Split(context.Background(), SplitRequest{StoredNameA: a, StoredNameB: b, A: full, B: full})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	return res
}

// hookStore lets a test run code right before selected store calls.
type hookStore struct {
	media.Store
	beforeDelete func(rel string)
	afterExists  func(rel string, exists bool)
}

func (s *hookStore) Delete(rel string) error {
	if s.beforeDelete != nil {
		s.beforeDelete(rel)
	}
	return s.Store.Delete(rel)
}

func (s *hookStore) Exists(rel string) bool {
	ok := s.Store.Exists(rel)
	if s.afterExists != nil {
		s.afterExists(rel, ok)
	}
	return ok
}
