package live_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/arbiter"
	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/registry"
	"github.com/classlive/backend/internal/signaling"
)

// sentEvent records one delivery through the fake broadcaster.
type sentEvent struct {
	event   string
	toUser  uuid.UUID // uuid.Nil for room broadcasts
	payload interface{}
}

// fakeBus satisfies both live.Broadcaster and signaling.Sender and records
// deliveries in order.
type fakeBus struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeBus) BroadcastToSession(_ uuid.UUID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{event: event, payload: payload})
}

func (f *fakeBus) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{event: event, toUser: userID, payload: payload})
}

func (f *fakeBus) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.event
	}
	return out
}

func (f *fakeBus) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// fakeRecorder counts saves per entity.
type fakeRecorder struct {
	mu    sync.Mutex
	saves map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{saves: make(map[string]int)}
}

func (f *fakeRecorder) bump(entity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves[entity]++
}

func (f *fakeRecorder) count(entity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[entity]
}

func (f *fakeRecorder) SaveSession(*models.Session)           { f.bump("session") }
func (f *fakeRecorder) SaveComment(*models.Comment)           { f.bump("comment") }
func (f *fakeRecorder) SaveHandRequest(*models.HandRequest)   { f.bump("hand_request") }
func (f *fakeRecorder) SaveQuiz(*models.Quiz)                 { f.bump("quiz") }
func (f *fakeRecorder) SaveQuizResponse(*models.QuizResponse) { f.bump("quiz_response") }

// fakeCache tracks which sessions currently have a cached locator.
type fakeCache struct {
	mu       sync.Mutex
	locators map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{locators: make(map[uuid.UUID]string)}
}

func (f *fakeCache) CacheLocator(sessionID uuid.UUID, playlistURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locators[sessionID] = playlistURL
	return nil
}

func (f *fakeCache) DropLocator(sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locators, sessionID)
	return nil
}

func (f *fakeCache) has(sessionID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.locators[sessionID]
	return ok
}

type fixture struct {
	orch  *live.Orchestrator
	bus   *fakeBus
	rec   *fakeRecorder
	cache *fakeCache
	prof  models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	reg := registry.New(logger)
	arb := arbiter.New(reg, logger)
	bus := &fakeBus{}
	relay := signaling.NewRelay(reg, arb, bus, logger)
	rec := newFakeRecorder()
	cache := newFakeCache()
	endpoints := live.StreamEndpoints{
		IngestBaseURL:   "http://ingest.local/publish/",
		PlaylistBaseURL: "http://edge.local/hls",
	}
	orch := live.New(reg, arb, relay, bus, rec, cache, endpoints, logger)
	return &fixture{
		orch:  orch,
		bus:   bus,
		rec:   rec,
		cache: cache,
		prof:  models.Principal{ID: uuid.New(), Name: "Prof. Ada", Role: models.RoleProfessor},
	}
}

func (f *fixture) newSession(t *testing.T) *models.Session {
	t.Helper()
	s, err := f.orch.CreateSession(f.prof, "Lecture", "desc")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	f.bus.reset()
	return s
}

func viewer(name string) models.Principal {
	return models.Principal{ID: uuid.New(), Name: name, Role: models.RoleViewer}
}

func TestCreateSessionViewerRejected(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.CreateSession(viewer("Bob"), "T", ""); err != models.ErrUnauthorized {
		t.Fatalf("viewer create = %v, want ErrUnauthorized", err)
	}
	if _, err := f.orch.CreateSession(f.prof, "", ""); err != models.ErrInvalidInput {
		t.Fatalf("empty title = %v, want ErrInvalidInput", err)
	}
}

func TestPostCommentBroadcasts(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	c, err := f.orch.PostComment(viewer("Bob"), s.ID, "hello")
	if err != nil {
		t.Fatalf("PostComment: %v", err)
	}
	if c.UserName != "Bob" {
		t.Fatalf("user name = %q", c.UserName)
	}
	if got := f.bus.names(); len(got) != 1 || got[0] != "new_comment" {
		t.Fatalf("events = %v, want [new_comment]", got)
	}
	if f.rec.count("comment") != 1 {
		t.Fatal("comment not recorded")
	}

	list, err := f.orch.ListComments(s.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListComments = %v (%v)", list, err)
	}
}

func TestPostCommentFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	if _, err := f.orch.EndSession(f.prof, s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	f.bus.reset()

	if _, err := f.orch.PostComment(viewer("Bob"), s.ID, "late"); err != models.ErrSessionNotActive {
		t.Fatalf("comment on ended = %v, want ErrSessionNotActive", err)
	}
	if got := f.bus.names(); len(got) != 0 {
		t.Fatalf("failed comment still emitted events: %v", got)
	}
	if f.rec.count("comment") != 0 {
		t.Fatal("failed comment reached the recorder")
	}
}

func TestGrantSupersedeEventOrder(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	bob := viewer("Bob")
	eve := viewer("Eve")

	reqBob, err := f.orch.RaiseHand(bob, s.ID)
	if err != nil {
		t.Fatalf("raise bob: %v", err)
	}
	reqEve, err := f.orch.RaiseHand(eve, s.ID)
	if err != nil {
		t.Fatalf("raise eve: %v", err)
	}
	if err := f.orch.GrantHand(f.prof, s.ID, reqBob.ID); err != nil {
		t.Fatalf("grant bob: %v", err)
	}
	f.bus.reset()

	if err := f.orch.GrantHand(f.prof, s.ID, reqEve.ID); err != nil {
		t.Fatalf("grant eve: %v", err)
	}

	want := []string{"hand_revoked", "hand_granted", "stream_switch"}
	got := f.bus.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestFirstGrantEmitsNoRevoke(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	req, _ := f.orch.RaiseHand(viewer("Bob"), s.ID)
	f.bus.reset()

	if err := f.orch.GrantHand(f.prof, s.ID, req.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	got := f.bus.names()
	if len(got) != 2 || got[0] != "hand_granted" || got[1] != "stream_switch" {
		t.Fatalf("events = %v, want [hand_granted stream_switch]", got)
	}
}

func TestRevokeHandEvents(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	req, _ := f.orch.RaiseHand(viewer("Bob"), s.ID)
	if err := f.orch.GrantHand(f.prof, s.ID, req.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.bus.reset()

	if err := f.orch.RevokeHand(f.prof, s.ID, req.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got := f.bus.names()
	if len(got) != 2 || got[0] != "hand_revoked" || got[1] != "stream_switch" {
		t.Fatalf("events = %v, want [hand_revoked stream_switch]", got)
	}
}

func TestListHandRequestsProfessorOnly(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	f.orch.RaiseHand(viewer("Bob"), s.ID)

	if _, err := f.orch.ListHandRequests(viewer("Eve"), s.ID); err != models.ErrUnauthorized {
		t.Fatalf("viewer list = %v, want ErrUnauthorized", err)
	}
	list, err := f.orch.ListHandRequests(f.prof, s.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("professor list = %v (%v)", list, err)
	}
}

func TestEndSessionEventOrder(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	if _, err := f.orch.StartStream(f.prof, s.ID); err != nil {
		t.Fatalf("start stream: %v", err)
	}
	f.bus.reset()

	ended, err := f.orch.EndSession(f.prof, s.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if !ended.Ended() || ended.EndTime == nil {
		t.Fatal("session not terminal after end")
	}
	if ended.Stream != nil {
		t.Fatal("stream locator survived session end")
	}
	if f.cache.has(s.ID) {
		t.Fatal("cached locator survived session end")
	}

	got := f.bus.names()
	if len(got) != 2 || got[0] != "session_ended" || got[1] != "stream_stop" {
		t.Fatalf("events = %v, want [session_ended stream_stop]", got)
	}

	if _, err := f.orch.EndSession(f.prof, s.ID); err != models.ErrSessionNotActive {
		t.Fatalf("double end = %v, want ErrSessionNotActive", err)
	}
}

func TestEndSessionRequiresPresiding(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	otherProf := models.Principal{ID: uuid.New(), Name: "Other", Role: models.RoleProfessor}

	if _, err := f.orch.EndSession(otherProf, s.ID); err != models.ErrUnauthorized {
		t.Fatalf("foreign professor end = %v, want ErrUnauthorized", err)
	}
	if _, err := f.orch.EndSession(viewer("Bob"), s.ID); err != models.ErrUnauthorized {
		t.Fatalf("viewer end = %v, want ErrUnauthorized", err)
	}
	if got := f.bus.names(); len(got) != 0 {
		t.Fatalf("failed end emitted events: %v", got)
	}
}

func TestUpdateSessionEndedStatusTakesEndPath(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	status := models.SessionEnded
	snap, err := f.orch.UpdateSession(f.prof, s.ID, live.SessionUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if !snap.Ended() {
		t.Fatal("session not ended through update")
	}
	got := f.bus.names()
	if len(got) != 2 || got[0] != "session_ended" || got[1] != "stream_stop" {
		t.Fatalf("events = %v, want end-session events", got)
	}
}

func TestUpdateSessionFields(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	title := "Renamed"
	desc := "new description"
	snap, err := f.orch.UpdateSession(f.prof, s.ID, live.SessionUpdate{Title: &title, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if snap.Title != "Renamed" || snap.Description != "new description" {
		t.Fatalf("snap = %+v", snap)
	}

	empty := ""
	if _, err := f.orch.UpdateSession(f.prof, s.ID, live.SessionUpdate{Title: &empty}); err != models.ErrInvalidInput {
		t.Fatalf("empty title update = %v, want ErrInvalidInput", err)
	}

	bad := models.SessionStatus("bogus")
	if _, err := f.orch.UpdateSession(f.prof, s.ID, live.SessionUpdate{Status: &bad}); err != models.ErrInvalidInput {
		t.Fatalf("bogus status = %v, want ErrInvalidInput", err)
	}
}

func TestStartStopStream(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	info, err := f.orch.StartStream(f.prof, s.ID)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if !strings.HasSuffix(info.PlaylistURL, ".m3u8") {
		t.Fatalf("playlist url = %q", info.PlaylistURL)
	}
	if !strings.Contains(info.PlaylistURL, s.ID.String()) {
		t.Fatalf("playlist url %q does not embed the session id", info.PlaylistURL)
	}
	if !f.cache.has(s.ID) {
		t.Fatal("locator not cached")
	}
	if got := f.bus.names(); len(got) != 1 || got[0] != "stream_started" {
		t.Fatalf("events = %v, want [stream_started]", got)
	}

	snap, _ := f.orch.GetSession(s.ID)
	if snap.Stream == nil {
		t.Fatal("session snapshot missing stream locator")
	}

	f.bus.reset()
	if err := f.orch.StopStream(f.prof, s.ID); err != nil {
		t.Fatalf("StopStream: %v", err)
	}
	if f.cache.has(s.ID) {
		t.Fatal("locator still cached after stop")
	}
	if got := f.bus.names(); len(got) != 1 || got[0] != "stream_stopped" {
		t.Fatalf("events = %v, want [stream_stopped]", got)
	}
	snap, _ = f.orch.GetSession(s.ID)
	if snap.Stream != nil {
		t.Fatal("stream locator survived stop")
	}
}

func TestStartStreamViewerRejected(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	if _, err := f.orch.StartStream(viewer("Bob"), s.ID); err != models.ErrUnauthorized {
		t.Fatalf("viewer start = %v, want ErrUnauthorized", err)
	}
	if f.cache.has(s.ID) {
		t.Fatal("failed start cached a locator")
	}
}

func TestQuizBroadcastHidesCorrectAnswer(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	q, err := f.orch.CreateQuiz(f.prof, s.ID, "2+2?", []string{"3", "4"}, "4")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	f.bus.mu.Lock()
	if len(f.bus.events) != 1 || f.bus.events[0].event != "new_quiz" {
		f.bus.mu.Unlock()
		t.Fatalf("events = %v, want one new_quiz", f.bus.events)
	}
	payload := f.bus.events[0].payload.(map[string]interface{})
	f.bus.mu.Unlock()

	for key := range payload {
		if strings.Contains(key, "correct") {
			t.Fatalf("quiz broadcast leaks %q", key)
		}
	}
	if payload["quiz_id"] != q.ID {
		t.Fatalf("payload quiz_id = %v", payload["quiz_id"])
	}
}

func TestCreateQuizValidation(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	if _, err := f.orch.CreateQuiz(viewer("Bob"), s.ID, "q", []string{"a", "b"}, "a"); err != models.ErrUnauthorized {
		t.Fatalf("viewer create quiz = %v, want ErrUnauthorized", err)
	}
	if _, err := f.orch.CreateQuiz(f.prof, s.ID, "q", []string{"only"}, "only"); err != models.ErrInvalidInput {
		t.Fatalf("single option = %v, want ErrInvalidInput", err)
	}
}

func TestRespondQuizGoesToProfessorOnly(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	bob := viewer("Bob")

	q, err := f.orch.CreateQuiz(f.prof, s.ID, "2+2?", []string{"3", "4"}, "4")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	f.bus.reset()

	resp, err := f.orch.RespondQuiz(bob, s.ID, q.ID, "4")
	if err != nil {
		t.Fatalf("RespondQuiz: %v", err)
	}
	if !resp.Correct {
		t.Fatal("matching answer not marked correct")
	}

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	if len(f.bus.events) != 1 {
		t.Fatalf("events = %v, want one quiz_response", f.bus.events)
	}
	e := f.bus.events[0]
	if e.event != "quiz_response" {
		t.Fatalf("event = %q", e.event)
	}
	if e.toUser != f.prof.ID {
		t.Fatalf("quiz_response addressed to %s, want professor %s", e.toUser, f.prof.ID)
	}
}

func TestRespondQuizUnknownQuiz(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	if _, err := f.orch.RespondQuiz(viewer("Bob"), s.ID, uuid.New(), "4"); err != models.ErrNotFound {
		t.Fatalf("respond unknown quiz = %v, want ErrNotFound", err)
	}
}

func TestHideCommentProfessorOnly(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	c, _ := f.orch.PostComment(viewer("Bob"), s.ID, "spam")

	if _, err := f.orch.HideComment(viewer("Eve"), s.ID, c.ID); err != models.ErrUnauthorized {
		t.Fatalf("viewer hide = %v, want ErrUnauthorized", err)
	}
	hidden, err := f.orch.HideComment(f.prof, s.ID, c.ID)
	if err != nil || !hidden.Hidden {
		t.Fatalf("professor hide = %v (%v)", hidden, err)
	}
}

func TestPublishOfferAuthorization(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	bob := viewer("Bob")
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}

	// viewer without the turn may not publish
	if err := f.orch.PublishOffer(bob, s.ID, offer); err != models.ErrUnauthorized {
		t.Fatalf("viewer offer = %v, want ErrUnauthorized", err)
	}

	// the presiding professor always may
	if err := f.orch.PublishOffer(f.prof, s.ID, offer); err != nil {
		t.Fatalf("professor offer: %v", err)
	}

	// the current turn holder may
	req, _ := f.orch.RaiseHand(bob, s.ID)
	if err := f.orch.GrantHand(f.prof, s.ID, req.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.orch.PublishOffer(bob, s.ID, offer); err != nil {
		t.Fatalf("holder offer: %v", err)
	}

	// and loses the right once revoked
	if err := f.orch.RevokeHand(f.prof, s.ID, req.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.orch.PublishOffer(bob, s.ID, offer); err != models.ErrUnauthorized {
		t.Fatalf("revoked holder offer = %v, want ErrUnauthorized", err)
	}
}

func TestSignalingValidation(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	empty := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}
	if err := f.orch.PublishOffer(f.prof, s.ID, empty); err != models.ErrInvalidInput {
		t.Fatalf("empty sdp = %v, want ErrInvalidInput", err)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	if err := f.orch.SendAnswer(viewer("Bob"), s.ID, answer, uuid.Nil); err != models.ErrInvalidInput {
		t.Fatalf("answer without target = %v, want ErrInvalidInput", err)
	}

	if err := f.orch.SendIceCandidate(viewer("Bob"), s.ID, webrtc.ICECandidateInit{}, uuid.New()); err != models.ErrInvalidInput {
		t.Fatalf("empty candidate = %v, want ErrInvalidInput", err)
	}
}

func TestSignalingAddressedDelivery(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	bob := viewer("Bob")
	target := uuid.New()

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	if err := f.orch.SendAnswer(bob, s.ID, answer, target); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1"}
	if err := f.orch.SendIceCandidate(bob, s.ID, cand, target); err != nil {
		t.Fatalf("SendIceCandidate: %v", err)
	}

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	if len(f.bus.events) != 2 {
		t.Fatalf("events = %v", f.bus.events)
	}
	if f.bus.events[0].event != "stream_answer" || f.bus.events[0].toUser != target {
		t.Fatalf("answer delivery = %+v", f.bus.events[0])
	}
	if f.bus.events[1].event != "ice_candidate" || f.bus.events[1].toUser != target {
		t.Fatalf("candidate delivery = %+v", f.bus.events[1])
	}
}

func TestSignalingRequiresActiveSession(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	if _, err := f.orch.EndSession(f.prof, s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	if err := f.orch.PublishOffer(f.prof, s.ID, offer); err != models.ErrSessionNotActive {
		t.Fatalf("offer on ended = %v, want ErrSessionNotActive", err)
	}
}
