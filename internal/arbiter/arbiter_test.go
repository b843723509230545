package arbiter

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/registry"
)

type fixture struct {
	reg     *registry.Registry
	arb     *Arbiter
	prof    models.Principal
	session *models.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New(zap.NewNop())
	prof := models.Principal{ID: uuid.New(), Name: "Prof. Ada", Role: models.RoleProfessor}
	s := reg.Create(prof, "Lecture", "")
	return &fixture{
		reg:     reg,
		arb:     New(reg, zap.NewNop()),
		prof:    prof,
		session: s,
	}
}

func viewer(name string) models.Principal {
	return models.Principal{ID: uuid.New(), Name: name, Role: models.RoleViewer}
}

func TestRaise(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")

	req, err := f.arb.Raise(f.session.ID, v)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if req.Status != models.HandPending {
		t.Fatalf("status = %q, want pending", req.Status)
	}
	if req.UserID != v.ID {
		t.Fatalf("user id = %s, want %s", req.UserID, v.ID)
	}
}

func TestRaiseRejectsProfessor(t *testing.T) {
	f := newFixture(t)
	if _, err := f.arb.Raise(f.session.ID, f.prof); err != models.ErrInvalidRole {
		t.Fatalf("professor raise = %v, want ErrInvalidRole", err)
	}
}

func TestRaiseRejectsDuplicatePending(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")

	if _, err := f.arb.Raise(f.session.ID, v); err != nil {
		t.Fatalf("first raise: %v", err)
	}
	if _, err := f.arb.Raise(f.session.ID, v); err != models.ErrDuplicatePending {
		t.Fatalf("second raise = %v, want ErrDuplicatePending", err)
	}
}

func TestRaiseAgainAfterResolution(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")

	req, _ := f.arb.Raise(f.session.ID, v)
	if _, err := f.arb.Grant(f.session.ID, f.prof, req.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := f.arb.Raise(f.session.ID, v); err != nil {
		t.Fatalf("raise after grant: %v", err)
	}
}

func TestRaiseRequiresActiveSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.reg.SetStatus(f.session.ID, models.SessionEnded); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.arb.Raise(f.session.ID, viewer("Bob")); err != models.ErrSessionNotActive {
		t.Fatalf("raise on ended = %v, want ErrSessionNotActive", err)
	}
}

func TestGrant(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")

	req, _ := f.arb.Raise(f.session.ID, v)
	res, err := f.arb.Grant(f.session.ID, f.prof, req.ID)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if res.Granted == nil || res.Granted.Status != models.HandGranted {
		t.Fatal("granted request missing or wrong status")
	}
	if res.Granted.GrantedAt == nil {
		t.Fatal("granted_at not set")
	}
	if res.Revoked != nil {
		t.Fatal("unexpected supersede on first grant")
	}

	holder, ok := f.arb.CurrentHolder(f.session.ID)
	if !ok || holder != v.ID {
		t.Fatalf("holder = %s ok=%v, want %s", holder, ok, v.ID)
	}
}

func TestGrantSupersedesPreviousHolder(t *testing.T) {
	f := newFixture(t)
	bob := viewer("Bob")
	eve := viewer("Eve")

	reqBob, _ := f.arb.Raise(f.session.ID, bob)
	reqEve, _ := f.arb.Raise(f.session.ID, eve)

	if _, err := f.arb.Grant(f.session.ID, f.prof, reqBob.ID); err != nil {
		t.Fatalf("grant bob: %v", err)
	}
	res, err := f.arb.Grant(f.session.ID, f.prof, reqEve.ID)
	if err != nil {
		t.Fatalf("grant eve: %v", err)
	}
	if res.Revoked == nil || res.Revoked.ID != reqBob.ID {
		t.Fatal("previous holder not reported revoked")
	}
	if res.Revoked.Status != models.HandRevoked {
		t.Fatalf("superseded status = %q, want revoked", res.Revoked.Status)
	}

	holder, ok := f.arb.CurrentHolder(f.session.ID)
	if !ok || holder != eve.ID {
		t.Fatalf("holder = %s, want %s", holder, eve.ID)
	}
}

func TestGrantErrors(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")
	req, _ := f.arb.Raise(f.session.ID, v)

	if _, err := f.arb.Grant(f.session.ID, viewer("Mallory"), req.ID); err != models.ErrUnauthorized {
		t.Fatalf("non-professor grant = %v, want ErrUnauthorized", err)
	}
	otherProf := models.Principal{ID: uuid.New(), Name: "Other", Role: models.RoleProfessor}
	if _, err := f.arb.Grant(f.session.ID, otherProf, req.ID); err != models.ErrUnauthorized {
		t.Fatalf("non-presiding professor grant = %v, want ErrUnauthorized", err)
	}
	if _, err := f.arb.Grant(f.session.ID, f.prof, uuid.New()); err != models.ErrNotFound {
		t.Fatalf("grant unknown = %v, want ErrNotFound", err)
	}

	if _, err := f.arb.Grant(f.session.ID, f.prof, req.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := f.arb.Grant(f.session.ID, f.prof, req.ID); err != models.ErrNotPending {
		t.Fatalf("re-grant = %v, want ErrNotPending", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	v := viewer("Bob")
	req, _ := f.arb.Raise(f.session.ID, v)
	f.arb.Grant(f.session.ID, f.prof, req.ID)

	out, err := f.arb.Revoke(f.session.ID, f.prof, req.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if out.Status != models.HandRevoked {
		t.Fatalf("status = %q, want revoked", out.Status)
	}
	if _, ok := f.arb.CurrentHolder(f.session.ID); ok {
		t.Fatal("holder remains after revoke")
	}

	if _, err := f.arb.Revoke(f.session.ID, f.prof, req.ID); err != models.ErrNotGranted {
		t.Fatalf("re-revoke = %v, want ErrNotGranted", err)
	}
}

func TestRevokePendingFails(t *testing.T) {
	f := newFixture(t)
	req, _ := f.arb.Raise(f.session.ID, viewer("Bob"))
	if _, err := f.arb.Revoke(f.session.ID, f.prof, req.ID); err != models.ErrNotGranted {
		t.Fatalf("revoke pending = %v, want ErrNotGranted", err)
	}
}

func TestListKeepsRaiseOrder(t *testing.T) {
	f := newFixture(t)
	var want []uuid.UUID
	for _, name := range []string{"A", "B", "C"} {
		req, err := f.arb.Raise(f.session.ID, viewer(name))
		if err != nil {
			t.Fatalf("raise %s: %v", name, err)
		}
		want = append(want, req.ID)
	}

	list, err := f.arb.List(f.session.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i].ID != want[i] {
			t.Fatalf("list[%d] = %s, want %s", i, list[i].ID, want[i])
		}
	}
}

// Concurrent grants against a full pending queue must leave exactly one
// holder, no matter how the goroutines interleave.
func TestConcurrentGrantsSingleHolder(t *testing.T) {
	f := newFixture(t)

	const n = 16
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		req, err := f.arb.Raise(f.session.ID, viewer("v"))
		if err != nil {
			t.Fatalf("raise %d: %v", i, err)
		}
		ids = append(ids, req.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = f.arb.Grant(f.session.ID, f.prof, id)
		}(id)
	}
	wg.Wait()

	list, _ := f.arb.List(f.session.ID)
	granted := 0
	for _, req := range list {
		if req.Status == models.HandGranted {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("granted count = %d, want exactly 1", granted)
	}
	if _, ok := f.arb.CurrentHolder(f.session.ID); !ok {
		t.Fatal("no current holder after concurrent grants")
	}
}
