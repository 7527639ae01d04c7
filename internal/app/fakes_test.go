package app

import (
	"context"
	"fmt"
	"sync"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

type patchCall struct {
	recordID string
	patch    model.RecordPatch
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*model.StudentRecord
	patchErrs []error
	patches   []patchCall
	gets      int
}

func newFakeStore(records ...*model.StudentRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*model.StudentRecord)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, recordID string) (*model.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	rec, ok := s.records[recordID]
	if !ok {
		return nil, &apperr.UpstreamError{Op: "get row", Status: 404}
	}
	cp := *rec
	if rec.Folder != nil {
		f := *rec.Folder
		cp.Folder = &f
	}
	return &cp, nil
}

func (s *fakeStore) Patch(_ context.Context, recordID string, patch model.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.patchErrs) > 0 {
		err := s.patchErrs[0]
		s.patchErrs = s.patchErrs[1:]
		if err != nil {
			return err
		}
	}
	rec, ok := s.records[recordID]
	if !ok {
		return &apperr.UpstreamError{Op: "patch row", Status: 404}
	}
	s.patches = append(s.patches, patchCall{recordID: recordID, patch: patch})
	if patch.FolderLink != "" {
		rec.Folder = &model.FolderReference{ProviderFolderID: patch.FolderID, ShareableLink: patch.FolderLink}
	}
	if patch.ProfileLink != "" {
		rec.ProfileLink = patch.ProfileLink
	}
	return nil
}

func (s *fakeStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

// fakeProvisioner is find-or-create by name, like the real backends.
type fakeProvisioner struct {
	mu      sync.Mutex
	folders map[string]model.FolderReference
	creates int
	calls   int
	failFor map[string]error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{folders: map[string]model.FolderReference{}, failFor: map[string]error{}}
}

func (p *fakeProvisioner) EnsureFolder(_ context.Context, name string) (model.FolderReference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err, ok := p.failFor[name]; ok {
		return model.FolderReference{}, err
	}
	if ref, ok := p.folders[name]; ok {
		return ref, nil
	}
	p.creates++
	ref := model.FolderReference{
		ProviderFolderID: fmt.Sprintf("folder-%d", p.creates),
		ShareableLink:    fmt.Sprintf("https://drive.example.org/folders/folder-%d", p.creates),
	}
	p.folders[name] = ref
	return ref, nil
}

func (p *fakeProvisioner) createCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) TryLock(_ context.Context, recordID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[recordID]; ok {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("t%d", l.seq)
	l.held[recordID] = token
	return token, true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, recordID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[recordID] == token {
		delete(l.held, recordID)
	}
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*model.Reconciliation
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]*model.Reconciliation{}}
}

func (l *fakeLedger) UpsertPending(_ context.Context, rec *model.Reconciliation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *rec
	cp.Status = model.ReconciliationPending
	if old, ok := l.entries[rec.RecordID]; ok {
		cp.Attempts = old.Attempts + 1
	} else {
		cp.Attempts = 1
	}
	l.entries[rec.RecordID] = &cp
	return nil
}

func (l *fakeLedger) MarkResolved(_ context.Context, recordID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[recordID]; ok && e.Status == model.ReconciliationPending {
		e.Status = model.ReconciliationResolved
	}
	return nil
}

func (l *fakeLedger) ListByStatus(_ context.Context, status string, _ int) ([]model.Reconciliation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Reconciliation
	for _, e := range l.entries {
		if status == "" || e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (l *fakeLedger) GetByRecordID(_ context.Context, recordID string) (*model.Reconciliation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[recordID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (l *fakeLedger) get(recordID string) *model.Reconciliation {
	e, _ := l.GetByRecordID(context.Background(), recordID)
	return e
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.WebhookEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fakePhotos struct {
	data map[string][]byte
	err  error
}

func (f *fakePhotos) Fetch(_ context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[url]
	if !ok {
		return nil, &apperr.UpstreamError{Op: "fetch photo", Status: 404}
	}
	return data, nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
	seen  []*model.ProfileViewModel
}

func (r *fakeRenderer) Render(vm *model.ProfileViewModel, templateID string) ([]byte, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, vm)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 " + vm.RecordID + " " + templateID), nil
}

func student(id, name string) *model.StudentRecord {
	return &model.StudentRecord{ID: id, DisplayName: name}
}
