package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/jwtutil"
)

type intakeFixture struct {
	store       *fakeStore
	provisioner *fakeProvisioner
	ledger      *fakeLedger
	locker      *fakeLocker
	publisher   *fakePublisher
	svc         *IntakeService
}

func newIntakeFixture(mode string, records ...*model.StudentRecord) *intakeFixture {
	f := &intakeFixture{
		store:       newFakeStore(records...),
		provisioner: newFakeProvisioner(),
		ledger:      newFakeLedger(),
		locker:      newFakeLocker(),
		publisher:   &fakePublisher{},
	}
	f.svc = NewIntakeService(f.store, f.provisioner, f.ledger, f.locker, f.publisher,
		NewProfileLinks("https://sb.example.org", "secret", 0, false),
		nil,
		IntakeOptions{TableID: "42", NameColumn: "Full Name", Mode: mode},
	)
	return f
}

func event(id, name string) model.WebhookEvent {
	return model.WebhookEvent{EventType: model.EventRowsCreated, RecordID: id, DisplayName: name}
}

func TestProcessProvisionsFolderAndPatchesRecord(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))

	outcome, err := f.svc.Process(context.Background(), event("S-100", "Amina B."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != StateAcked || outcome.Skipped {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if _, ok := f.provisioner.folders["S-100 - Amina B."]; !ok {
		t.Fatalf("expected folder named %q, got %v", "S-100 - Amina B.", f.provisioner.folders)
	}
	if len(f.store.patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(f.store.patches))
	}
	p := f.store.patches[0]
	if p.recordID != "S-100" || p.patch.FolderLink != outcome.Folder.ShareableLink {
		t.Errorf("unexpected patch %+v", p)
	}
	if p.patch.ProfileLink != "https://sb.example.org/students/S-100/profile.pdf" {
		t.Errorf("unexpected profile link %q", p.patch.ProfileLink)
	}
}

func TestProcessIsIdempotentAcrossRedeliveries(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))

	for i := 0; i < 5; i++ {
		outcome, err := f.svc.Process(context.Background(), event("S-100", "Amina B."))
		if err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i, err)
		}
		if outcome.State != StateAcked {
			t.Fatalf("delivery %d: expected ACKED, got %s", i, outcome.State)
		}
		if i > 0 && !outcome.Skipped {
			t.Errorf("delivery %d: expected skip", i)
		}
	}
	if f.provisioner.createCount() != 1 {
		t.Errorf("expected exactly one folder, got %d", f.provisioner.createCount())
	}
	if f.provisioner.calls != 1 {
		t.Errorf("expected provisioner to be called once, got %d", f.provisioner.calls)
	}
	if f.store.patchCount() != 1 {
		t.Errorf("expected exactly one patch, got %d", f.store.patchCount())
	}
}

func TestProcessConcurrentDuplicatesCreateOneFolder(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Process(context.Background(), event("S-100", "Amina B.")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrProvisioningInProgress) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if f.provisioner.createCount() != 1 {
		t.Errorf("expected one folder, got %d", f.provisioner.createCount())
	}

	outcome, err := f.svc.Process(context.Background(), event("S-100", "Amina B."))
	if err != nil || !outcome.Skipped {
		t.Fatalf("expected a skipped redelivery, got %+v, %v", outcome, err)
	}
}

func TestProcessIsolatesRecords(t *testing.T) {
	a := student("A-1", "Amina B.")
	b := student("B-2", "Joseph K.")
	b.Academic.School = "Hillside"
	f := newIntakeFixture(IntakeModeInline, a, b)

	if _, err := f.svc.Process(context.Background(), event("A-1", "Amina B.")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.store.Get(context.Background(), "B-2")
	if got.Folder != nil || got.ProfileLink != "" || got.Academic.School != "Hillside" {
		t.Errorf("record B changed: %+v", got)
	}
	for _, p := range f.store.patches {
		if p.recordID != "A-1" {
			t.Errorf("unexpected patch for %s", p.recordID)
		}
	}
}

func TestProcessProvisionerFailureDoesNotPatch(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-1", "Amina B."))
	f.provisioner.failFor["S-1 - Amina B."] = &apperr.UpstreamError{Op: "drive create folder", Status: 503}

	outcome, err := f.svc.Process(context.Background(), event("S-1", "Amina B."))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if outcome.State != StateRejected {
		t.Errorf("expected REJECTED, got %s", outcome.State)
	}
	if f.store.patchCount() != 0 {
		t.Error("expected no patch")
	}
	if apperr.HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", apperr.HTTPStatus(err))
	}
}

func TestProcessPatchFailureIsLoggedForReconciliation(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))
	f.store.patchErrs = []error{&apperr.UpstreamError{Op: "patch row", Status: 502}}

	outcome, err := f.svc.Process(context.Background(), event("S-100", "Amina B."))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if outcome.State != StateFolderResolved || outcome.Folder == nil {
		t.Fatalf("expected FOLDER_RESOLVED with folder, got %+v", outcome)
	}
	entry := f.ledger.get("S-100")
	if entry == nil {
		t.Fatal("expected reconciliation entry")
	}
	if entry.Reason != ReasonPatchFailed || entry.Status != model.ReconciliationPending {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.FolderLink != outcome.Folder.ShareableLink || entry.FolderID != outcome.Folder.ProviderFolderID {
		t.Errorf("entry does not reference the provisioned folder: %+v", entry)
	}

	// redelivery reuses the folder and resolves the entry
	outcome, err = f.svc.Process(context.Background(), event("S-100", "Amina B."))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome.State != StateAcked {
		t.Errorf("expected ACKED, got %s", outcome.State)
	}
	if f.provisioner.createCount() != 1 {
		t.Errorf("expected folder reuse, got %d creates", f.provisioner.createCount())
	}
	if got := f.ledger.get("S-100"); got.Status != model.ReconciliationResolved {
		t.Errorf("expected resolved entry, got %s", got.Status)
	}
}

func TestPatchFailureLogTagsRecordOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))
	f.store.patchErrs = []error{&apperr.UpstreamError{Op: "patch row", Status: 502}}
	if _, err := f.svc.Process(context.Background(), event("S-100", "Amina B.")); err == nil {
		t.Fatal("expected patch failure")
	}

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "folder provisioned but record patch failed") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("missing unlinked folder log in %q", buf.String())
	}
	if n := strings.Count(line, `"record_id":`); n != 1 {
		t.Errorf("expected record_id once, got %d in %s", n, line)
	}
	if !strings.Contains(line, `"reason":"`+ReasonPatchFailed+`"`) {
		t.Errorf("expected reason in %s", line)
	}
}

func TestProcessPatchConflict(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-5", "Ruth M."))
	f.store.patchErrs = []error{&apperr.UpstreamError{Op: "patch row", Status: 409}}

	_, err := f.svc.Process(context.Background(), event("S-5", "Ruth M."))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusConflict {
		t.Errorf("expected 409, got %d", apperr.HTTPStatus(err))
	}
	if entry := f.ledger.get("S-5"); entry == nil || entry.Reason != ReasonConflict {
		t.Errorf("expected conflict entry, got %+v", entry)
	}
}

func TestProcessLockHeld(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-9", "Peter L."))
	f.locker.held["S-9"] = "someone-else"

	_, err := f.svc.Process(context.Background(), event("S-9", "Peter L."))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if f.store.gets != 0 {
		t.Error("expected no record fetch while locked")
	}
}

func TestProcessContinuesWhenLockBackendFails(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("S-9", "Peter L."))
	f.locker.err = errors.New("redis down")

	outcome, err := f.svc.Process(context.Background(), event("S-9", "Peter L."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != StateAcked {
		t.Errorf("expected ACKED, got %s", outcome.State)
	}
}

func TestProcessUnknownRecord(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline)
	_, err := f.svc.Process(context.Background(), event("missing", "Nobody"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.provisioner.calls != 0 {
		t.Error("expected no provisioning")
	}
}

func TestHandleRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"not json", `{"recordId":`},
		{"array", `[1,2]`},
		{"missing record id", `{"name":"Amina B."}`},
		{"missing name", `{"recordId":"S-100"}`},
		{"blank record id", `{"recordId":"  ","name":"Amina B."}`},
		{"envelope without items", `{"event_type":"rows.created","table_id":42}`},
		{"envelope empty items", `{"event_type":"rows.created","table_id":42,"items":[]}`},
		{"envelope item without id", `{"event_type":"rows.created","items":[{"Full Name":"A"}]}`},
		{"envelope item without name", `{"event_type":"rows.created","items":[{"id":7}]}`},
		{"envelope item not object", `{"event_type":"rows.created","items":["x"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(IntakeModeInline, student("S-100", "Amina B."))
			_, err := f.svc.Handle(context.Background(), []byte(tt.body))
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if f.provisioner.calls != 0 || f.store.patchCount() != 0 {
				t.Error("expected no folder and no patch")
			}
		})
	}
}

func TestHandleIgnoresUnhandledDeliveries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"updated event", `{"event_type":"rows.updated","table_id":42,"items":[{"id":7,"Full Name":"A"}]}`},
		{"test delivery", `{"event_type":"rows.created","table_id":42,"items":[{"id":0,"Full Name":"Test"}]}`},
		{"other table", `{"event_type":"rows.created","table_id":99,"items":[{"id":7,"Full Name":"A"}]}`},
		{"flat other event", `{"eventType":"rows.deleted","recordId":"7","name":"A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(IntakeModeInline, student("7", "A"))
			result, err := f.svc.Handle(context.Background(), []byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != "ignored" || result.Reason == "" {
				t.Errorf("unexpected result %+v", result)
			}
			if f.provisioner.calls != 0 {
				t.Error("expected no provisioning")
			}
		})
	}
}

func TestHandleBaserowEnvelope(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("7", "Amina B."), student("8", "Joseph K."))
	body := `{
		"table_id": 42,
		"event_id": "0b1c",
		"event_type": "rows.created",
		"items": [
			{"id": 7, "order": "1.00", "Full Name": "Amina B."},
			{"id": 8, "order": "2.00", "Full Name": "Joseph K."}
		]
	}`

	result, err := f.svc.Handle(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "processed" || len(result.Outcomes) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, o := range result.Outcomes {
		if o.State != StateAcked {
			t.Errorf("record %s: expected ACKED, got %s", o.RecordID, o.State)
		}
	}
	if f.provisioner.createCount() != 2 {
		t.Errorf("expected two folders, got %d", f.provisioner.createCount())
	}
}

func TestHandlePrefersTransientError(t *testing.T) {
	f := newIntakeFixture(IntakeModeInline, student("7", "Amina B."), student("8", "Joseph K."))
	f.provisioner.failFor["8 - Joseph K."] = &apperr.UpstreamError{Op: "drive create folder", Status: 500}
	body := `{"event_type":"rows.created","items":[{"id":99,"Full Name":"Ghost"},{"id":8,"Full Name":"Joseph K."},{"id":7,"Full Name":"Amina B."}]}`

	result, err := f.svc.Handle(context.Background(), []byte(body))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(result.Outcomes) != 3 || result.Outcomes[2].State != StateAcked {
		t.Errorf("expected the healthy record to be provisioned, got %+v", result.Outcomes)
	}
}

func TestHandleQueueMode(t *testing.T) {
	f := newIntakeFixture(IntakeModeQueue, student("S-100", "Amina B."))

	result, err := f.svc.Handle(context.Background(), []byte(`{"recordId":"S-100","name":"Amina B."}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "accepted" {
		t.Errorf("expected accepted, got %s", result.Status)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].RecordID != "S-100" {
		t.Errorf("unexpected published events %+v", f.publisher.events)
	}
	if f.provisioner.calls != 0 {
		t.Error("queue mode must not provision inline")
	}
}

func TestHandleQueuePublishFailure(t *testing.T) {
	f := newIntakeFixture(IntakeModeQueue, student("S-100", "Amina B."))
	f.publisher.err = errors.New("channel closed")

	_, err := f.svc.Handle(context.Background(), []byte(`{"recordId":"S-100","name":"Amina B."}`))
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDeadLetterWritesLedger(t *testing.T) {
	f := newIntakeFixture(IntakeModeQueue)
	f.svc.DeadLetter(context.Background(), event("S-7", "X"), errors.New("gave up"))

	entry := f.ledger.get("S-7")
	if entry == nil || entry.Reason != ReasonDeadLetter || entry.FolderLink != "" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestProfileLinksSigned(t *testing.T) {
	links := NewProfileLinks("https://sb.example.org/", "secret", time.Hour, true)
	link, err := links.For("S-100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prefix := "https://sb.example.org/students/S-100/profile.pdf?token="
	if !strings.HasPrefix(link, prefix) {
		t.Fatalf("unexpected link %q", link)
	}
	if err := jwtutil.VerifyLinkToken("secret", strings.TrimPrefix(link, prefix), "S-100"); err != nil {
		t.Errorf("token does not verify: %v", err)
	}

	var none *ProfileLinks
	if link, err := none.For("S-100"); link != "" || err != nil {
		t.Errorf("expected no link, got %q, %v", link, err)
	}
}
