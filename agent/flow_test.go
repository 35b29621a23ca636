package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/tbxark/hrflow/extract"
	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

type oracleReply struct {
	kind       workflow.Kind
	fields     map[string]any
	extractErr error
}

// fakeOracle answers by exact message. Unknown messages fail classification.
type fakeOracle struct {
	replies       map[string]oracleReply
	classifyCalls atomic.Int32
	extractCalls  atomic.Int32
}

func newFakeOracle(replies map[string]oracleReply) *fakeOracle {
	return &fakeOracle{replies: replies}
}

func (o *fakeOracle) Classify(ctx context.Context, message string) (workflow.Kind, error) {
	o.classifyCalls.Add(1)
	r, ok := o.replies[message]
	if !ok || r.kind == "" {
		return "", fmt.Errorf("invalid intent: %q", "payroll")
	}
	return r.kind, nil
}

func (o *fakeOracle) Extract(ctx context.Context, req *extract.Request) (map[string]any, error) {
	o.extractCalls.Add(1)
	r := o.replies[req.Message]
	if r.extractErr != nil {
		return nil, r.extractErr
	}
	return maps.Clone(r.fields), nil
}

type submission struct {
	kind    workflow.Kind
	payload map[string]any
}

type recordingSubmitter struct {
	mu    sync.Mutex
	err   error
	calls []submission
}

func (s *recordingSubmitter) Submit(ctx context.Context, kind workflow.Kind, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submission{kind: kind, payload: maps.Clone(payload)})
	return s.err
}

func (s *recordingSubmitter) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

const (
	msgLeaveFull     = "I need leave from 2024-07-01 to 2024-07-05 for a family trip, employee id E123"
	msgLeavePartial  = "I need leave starting 2024-07-01 for a family trip, employee id E123"
	msgLeaveEnd      = "until 2024-07-05"
	msgOnboard       = "We have a new developer joining, Ana Silva"
	msgPulse         = "Here's the team's monthly feedback: morale is high"
	msgPulseSpoofed  = "feedback from other@example.com"
	msgExtractBroken = "leave next week please"
)

func defaultReplies() map[string]oracleReply {
	return map[string]oracleReply{
		msgLeaveFull: {kind: workflow.LeaveRequest, fields: map[string]any{
			"employee_id": "E123", "start_date": "2024-07-01", "end_date": "2024-07-05", "reason": "family trip",
		}},
		msgLeavePartial: {kind: workflow.LeaveRequest, fields: map[string]any{
			"employee_id": "E123", "start_date": "2024-07-01", "end_date": "", "reason": "family trip",
		}},
		msgLeaveEnd: {kind: workflow.LeaveRequest, fields: map[string]any{"end_date": "2024-07-05", "reason": nil}},
		msgOnboard:  {kind: workflow.Onboarding, fields: map[string]any{"first_name": "Ana", "last_name": "Silva"}},
		msgPulse:    {kind: workflow.PulseCheck, fields: map[string]any{"feedback": "morale is high"}},
		msgPulseSpoofed: {kind: workflow.PulseCheck, fields: map[string]any{"email": "other@example.com"}},
		msgExtractBroken: {kind: workflow.LeaveRequest, extractErr: errors.New("model returned prose")},
	}
}

func newTestFlow(t *testing.T, opts ...FlowOption) (*Flow, *fakeOracle, *recordingSubmitter, *SessionStore) {
	t.Helper()
	oracle := newFakeOracle(defaultReplies())
	submitter := &recordingSubmitter{}
	store := NewMemorySessionStore()
	opts = append([]FlowOption{WithStore(store)}, opts...)
	flow, err := NewFlow(oracle, oracle, submitter, opts...)
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}
	return flow, oracle, submitter, store
}

func handle(t *testing.T, f *Flow, user, message string) *types.Result {
	t.Helper()
	res, err := f.Handle(context.Background(), user, message)
	if err != nil {
		t.Fatalf("handle %q: %v", message, err)
	}
	if res.TurnID == "" {
		t.Fatalf("missing turn id for %q", message)
	}
	return res
}

func stored(t *testing.T, s *SessionStore, user string) *Session {
	t.Helper()
	ok, err := s.Exists(context.Background(), user)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		return nil
	}
	sess, err := s.GetOrCreate(context.Background(), user)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return sess
}

func TestCompleteLeaveRequestAsksForConfirmation(t *testing.T) {
	t.Parallel()
	f, _, sub, store := newTestFlow(t)

	res := handle(t, f, "u1", msgLeaveFull)
	if res.Status != types.StatusConfirm || res.Intent != workflow.LeaveRequest {
		t.Fatalf("expected confirm leave_request, got %s %s", res.Status, res.Intent)
	}
	if res.Message != "Got everything for `leave_request`. Shall I go ahead and submit it?" {
		t.Errorf("unexpected message %q", res.Message)
	}
	sess := stored(t, store, "u1")
	if sess == nil || !sess.PendingConfirmation {
		t.Fatalf("expected pending session, got %+v", sess)
	}
	if sub.count() != 0 {
		t.Fatal("nothing should be submitted before confirmation")
	}

	res = handle(t, f, "u1", "yes")
	if res.Status != types.StatusSuccess {
		t.Fatalf("expected success, got %s: %s", res.Status, res.Details)
	}
	if stored(t, store, "u1") != nil {
		t.Error("session should be deleted after submission")
	}
	if sub.count() != 1 {
		t.Fatalf("expected one submission, got %d", sub.count())
	}
	call := sub.calls[0]
	if call.kind != workflow.LeaveRequest || call.payload[SourceUserField] != "u1" || call.payload["end_date"] != "2024-07-05" {
		t.Errorf("unexpected submission %+v", call)
	}
}

func TestMissingFieldIsReportedAndFilledLater(t *testing.T) {
	t.Parallel()
	f, _, _, store := newTestFlow(t)

	res := handle(t, f, "u1", msgLeavePartial)
	if res.Status != types.StatusIncomplete {
		t.Fatalf("expected incomplete, got %s", res.Status)
	}
	if !slices.Equal(res.Missing, []string{"end_date"}) {
		t.Fatalf("expected [end_date], got %v", res.Missing)
	}
	if res.Message != "Thanks! I still need: end_date" {
		t.Errorf("unexpected message %q", res.Message)
	}
	if _, ok := stored(t, store, "u1").Fields["end_date"]; ok {
		t.Error("empty extracted value must not be stored")
	}

	res = handle(t, f, "u1", msgLeaveEnd)
	if res.Status != types.StatusConfirm {
		t.Fatalf("expected confirm, got %s missing=%v", res.Status, res.Missing)
	}
	sess := stored(t, store, "u1")
	if sess.Fields["reason"] != "family trip" {
		t.Errorf("null extraction overwrote reason: %v", sess.Fields["reason"])
	}
}

func TestSmallTalkIsNeutralAndCreatesNoSession(t *testing.T) {
	t.Parallel()
	f, oracle, _, store := newTestFlow(t)

	for _, msg := range []string{"hello", "  Good Morning ", "", "   "} {
		res := handle(t, f, "u1", msg)
		if res.Status != types.StatusNeutral {
			t.Fatalf("%q: expected neutral, got %s", msg, res.Status)
		}
		if res.Details != "" {
			t.Errorf("%q: small talk should carry no details, got %q", msg, res.Details)
		}
	}
	if stored(t, store, "u1") != nil {
		t.Error("small talk must not create a session")
	}
	if oracle.classifyCalls.Load() != 0 {
		t.Error("small talk must not reach the oracle")
	}
}

func TestNoAfterConfirmCancelsAndStartsFresh(t *testing.T) {
	t.Parallel()
	f, _, sub, store := newTestFlow(t)

	handle(t, f, "u1", msgLeaveFull)
	res := handle(t, f, "u1", "No")
	if res.Status != types.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", res.Status)
	}
	if res.Message != "Okay! I've cancelled the request." {
		t.Errorf("unexpected message %q", res.Message)
	}
	if stored(t, store, "u1") != nil {
		t.Fatal("session should be deleted")
	}
	if sub.count() != 0 {
		t.Fatal("cancel must not submit")
	}

	res = handle(t, f, "u1", msgLeavePartial)
	if res.Status != types.StatusIncomplete || !slices.Equal(res.Missing, []string{"end_date"}) {
		t.Fatalf("expected fresh incomplete session, got %s %v", res.Status, res.Missing)
	}
}

func TestPulseCheckEmailIsForcedToIdentity(t *testing.T) {
	t.Parallel()
	f, _, sub, store := newTestFlow(t)

	res := handle(t, f, "alice@example.com", msgPulseSpoofed)
	if res.Status != types.StatusConfirm || res.Intent != workflow.PulseCheck {
		t.Fatalf("expected confirm pulse_check, got %s %s", res.Status, res.Intent)
	}
	if got := stored(t, store, "alice@example.com").Fields["email"]; got != "alice@example.com" {
		t.Fatalf("expected identity email, got %v", got)
	}

	handle(t, f, "alice@example.com", "submit")
	if sub.count() != 1 || sub.calls[0].payload["email"] != "alice@example.com" {
		t.Fatalf("unexpected submissions %+v", sub.calls)
	}
}

func TestWebhookFailureKeepsSession(t *testing.T) {
	t.Parallel()
	f, _, sub, store := newTestFlow(t)

	handle(t, f, "u1", msgLeaveFull)
	sub.setErr(fmt.Errorf("%w: 503 service unavailable", types.ErrSubmission))
	before := stored(t, store, "u1")

	res := handle(t, f, "u1", "confirm")
	if res.Status != types.StatusError {
		t.Fatalf("expected error, got %s", res.Status)
	}
	if res.Message != "Submission failed." || !strings.Contains(res.Details, "503") {
		t.Errorf("unexpected message %q details %q", res.Message, res.Details)
	}
	if !errors.Is(res.Err, types.ErrSubmission) {
		t.Errorf("expected ErrSubmission, got %v", res.Err)
	}
	after := stored(t, store, "u1")
	if after == nil || !after.PendingConfirmation || !maps.Equal(after.Fields, before.Fields) {
		t.Fatalf("session should be unchanged, got %+v", after)
	}
	if _, ok := after.Fields[SourceUserField]; ok {
		t.Error("source_user leaked into the stored session")
	}

	sub.setErr(nil)
	res = handle(t, f, "u1", "yes")
	if res.Status != types.StatusSuccess {
		t.Fatalf("retry should succeed, got %s", res.Status)
	}
	if sub.count() != 2 {
		t.Fatalf("expected two attempts, got %d", sub.count())
	}
}

// undeletableStore loses every Delete.
type undeletableStore struct {
	*SessionStore
}

func (undeletableStore) Delete(context.Context, string) error {
	return errors.New("store offline")
}

func TestDeleteFailureAfterSubmitStillSucceeds(t *testing.T) {
	t.Parallel()
	store := NewMemorySessionStore()
	f, _, sub, _ := newTestFlow(t, WithStore(undeletableStore{store}))

	handle(t, f, "u1", msgLeaveFull)
	res := handle(t, f, "u1", "yes")
	if res.Status != types.StatusSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if sub.count() != 1 {
		t.Fatalf("expected one submission, got %d", sub.count())
	}
	if sess := stored(t, store, "u1"); sess != nil && (sess.PendingConfirmation || sess.Intent != "") {
		t.Fatalf("session should no longer be pending, got %+v", sess)
	}

	res = handle(t, f, "u1", "yes")
	if res.Status != types.StatusNeutral || sub.count() != 1 {
		t.Fatalf("repeated yes must not resubmit, got %s after %d submissions", res.Status, sub.count())
	}
}

func TestConfirmationAcceptsExactVocabularyOnly(t *testing.T) {
	t.Parallel()
	for _, answer := range []string{"yes", "YES", " Yes Please ", "submit", "Confirm"} {
		f, _, sub, _ := newTestFlow(t)
		handle(t, f, "u1", msgLeaveFull)
		if res := handle(t, f, "u1", answer); res.Status != types.StatusSuccess {
			t.Errorf("%q: expected success, got %s", answer, res.Status)
		}
		if sub.count() != 1 {
			t.Errorf("%q: expected one submission", answer)
		}
	}

	for _, answer := range []string{"yes!", "yeah", "sure", "ok", "no way", msgOnboard} {
		f, oracle, sub, store := newTestFlow(t)
		handle(t, f, "u1", msgLeaveFull)
		before := stored(t, store, "u1")
		calls := oracle.classifyCalls.Load()
		res := handle(t, f, "u1", answer)
		if res.Status != types.StatusWaiting {
			t.Errorf("%q: expected waiting, got %s", answer, res.Status)
		}
		after := stored(t, store, "u1")
		if after.Intent != before.Intent || !after.PendingConfirmation || !maps.Equal(after.Fields, before.Fields) {
			t.Errorf("%q: session mutated: %+v", answer, after)
		}
		if oracle.classifyCalls.Load() != calls {
			t.Errorf("%q: oracle consulted while confirming", answer)
		}
		if sub.count() != 0 {
			t.Errorf("%q: unexpected submission", answer)
		}
	}
}

func TestIntentChangeResetsSession(t *testing.T) {
	t.Parallel()
	f, _, _, store := newTestFlow(t)

	handle(t, f, "u1", msgLeavePartial)
	res := handle(t, f, "u1", msgOnboard)
	if res.Status != types.StatusIncomplete || res.Intent != workflow.Onboarding {
		t.Fatalf("expected incomplete onboarding, got %s %s", res.Status, res.Intent)
	}
	sess := stored(t, store, "u1")
	if _, ok := sess.Fields["employee_id"]; ok {
		t.Errorf("leave fields survived the intent change: %v", sess.Fields)
	}
	want := []string{"employee_id", "email", "department", "role", "start_date", "manager_email"}
	if !slices.Equal(res.Missing, want) {
		t.Errorf("expected %v, got %v", want, res.Missing)
	}
}

func TestClassificationFailureLeavesSessionUntouched(t *testing.T) {
	t.Parallel()
	f, oracle, _, store := newTestFlow(t)

	handle(t, f, "u1", msgLeavePartial)
	before := stored(t, store, "u1")
	res := handle(t, f, "u1", "what is the payroll date")
	if res.Status != types.StatusError || res.Message != "Could not classify intent" {
		t.Fatalf("expected classification error, got %s %q", res.Status, res.Message)
	}
	if !errors.Is(res.Err, types.ErrClassification) || !strings.Contains(res.Details, "payroll") {
		t.Errorf("unexpected error details %v %q", res.Err, res.Details)
	}
	if oracle.extractCalls.Load() != 1 {
		t.Error("extraction must not run after a failed classification")
	}
	after := stored(t, store, "u1")
	if after.Intent != before.Intent || !maps.Equal(after.Fields, before.Fields) {
		t.Errorf("session mutated: %+v", after)
	}
}

func TestExtractionFailureIsAbsorbed(t *testing.T) {
	t.Parallel()
	f, _, _, store := newTestFlow(t)

	handle(t, f, "u1", msgLeavePartial)
	res := handle(t, f, "u1", msgExtractBroken)
	if res.Status != types.StatusIncomplete || !slices.Equal(res.Missing, []string{"end_date"}) {
		t.Fatalf("expected incomplete [end_date], got %s %v", res.Status, res.Missing)
	}
	if stored(t, store, "u1").Fields["employee_id"] != "E123" {
		t.Error("prior fields should be kept")
	}
}

func TestSessionMisuse(t *testing.T) {
	t.Parallel()

	t.Run("affirmative without session", func(t *testing.T) {
		f, oracle, sub, store := newTestFlow(t)
		res := handle(t, f, "u1", "yes")
		if res.Status != types.StatusNeutral || !errors.Is(res.Err, types.ErrSessionMisuse) || res.Details == "" {
			t.Fatalf("expected neutral misuse, got %+v", res)
		}
		if oracle.classifyCalls.Load() != 0 || sub.count() != 0 || stored(t, store, "u1") != nil {
			t.Error("misuse must not touch oracle, webhook or store")
		}
	})

	t.Run("affirmative with incomplete session", func(t *testing.T) {
		f, _, sub, _ := newTestFlow(t)
		handle(t, f, "u1", msgLeavePartial)
		res := handle(t, f, "u1", "submit")
		if res.Status != types.StatusIncomplete || !slices.Equal(res.Missing, []string{"end_date"}) {
			t.Fatalf("expected incomplete [end_date], got %s %v", res.Status, res.Missing)
		}
		if !errors.Is(res.Err, types.ErrSessionMisuse) || sub.count() != 0 {
			t.Errorf("expected misuse without submission, got %v", res.Err)
		}
	})

	t.Run("negative with incomplete session", func(t *testing.T) {
		f, _, _, store := newTestFlow(t)
		handle(t, f, "u1", msgLeavePartial)
		res := handle(t, f, "u1", "cancel")
		if res.Status != types.StatusCancelled || !errors.Is(res.Err, types.ErrSessionMisuse) {
			t.Fatalf("expected cancelled misuse, got %+v", res)
		}
		if stored(t, store, "u1") != nil {
			t.Error("session should be deleted")
		}
	})

	t.Run("negative without session", func(t *testing.T) {
		f, _, _, _ := newTestFlow(t)
		res := handle(t, f, "u1", "not now")
		if res.Status != types.StatusNeutral || !errors.Is(res.Err, types.ErrSessionMisuse) {
			t.Fatalf("expected neutral misuse, got %+v", res)
		}
	})
}

func TestEmptyUserIsRejected(t *testing.T) {
	t.Parallel()
	f, _, _, _ := newTestFlow(t)
	if _, err := f.Handle(context.Background(), " ", "hello"); !errors.Is(err, ErrEmptyUser) {
		t.Fatalf("expected ErrEmptyUser, got %v", err)
	}
}

type failingDialogue struct{}

func (failingDialogue) GenerateDialogue(ctx context.Context, req *types.ToolRequest) (string, error) {
	return "", errors.New("model unavailable")
}

func TestDialogueFailureFallsBackToTemplates(t *testing.T) {
	t.Parallel()
	f, _, _, store := newTestFlow(t, WithDialogueGenerator(failingDialogue{}))
	res := handle(t, f, "u1", msgLeaveFull)
	if res.Status != types.StatusConfirm || res.Message != "Got everything for `leave_request`. Shall I go ahead and submit it?" {
		t.Fatalf("unexpected result %s %q", res.Status, res.Message)
	}
	if !stored(t, store, "u1").PendingConfirmation {
		t.Error("rendering failure must not change state")
	}
}

// serialExtractor fails the test if two turns of the same user overlap.
type serialExtractor struct {
	*fakeOracle
	mu       sync.Mutex
	inFlight map[string]int
	overlap  atomic.Bool
}

func (e *serialExtractor) Extract(ctx context.Context, req *extract.Request) (map[string]any, error) {
	user, _ := req.Known["employee_id"].(string)
	e.mu.Lock()
	e.inFlight[user]++
	if e.inFlight[user] > 1 {
		e.overlap.Store(true)
	}
	e.mu.Unlock()
	time.Sleep(time.Millisecond)
	e.mu.Lock()
	e.inFlight[user]--
	e.mu.Unlock()
	return map[string]any{"employee_id": user, "start_date": "2024-07-01", "reason": "trip"}, nil
}

func TestSameUserTurnsAreSerialized(t *testing.T) {
	t.Parallel()
	oracle := newFakeOracle(map[string]oracleReply{"leave please": {kind: workflow.LeaveRequest}})
	ext := &serialExtractor{fakeOracle: oracle, inFlight: map[string]int{}}
	store := NewMemorySessionStore()
	f, err := NewFlow(oracle, ext, &recordingSubmitter{}, WithStore(store))
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}

	users := []string{"u1", "u2", "u3"}
	for _, u := range users {
		_ = store.Put(context.Background(), u, &Session{Intent: workflow.LeaveRequest, Fields: map[string]any{"employee_id": u}})
	}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		user := users[i%len(users)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Handle(context.Background(), user, "leave please")
			if err != nil {
				t.Errorf("handle: %v", err)
				return
			}
			if res.Status != types.StatusIncomplete {
				t.Errorf("expected incomplete, got %s", res.Status)
			}
		}()
	}
	wg.Wait()
	if ext.overlap.Load() {
		t.Fatal("turns of the same user overlapped")
	}
	for _, u := range users {
		if got := stored(t, store, u).Fields["employee_id"]; got != u {
			t.Errorf("%s: fields crossed users: %v", u, got)
		}
	}
}

func TestSessionInvariantsHoldAfterEveryTurn(t *testing.T) {
	script := []string{
		msgLeaveFull, msgLeavePartial, msgLeaveEnd, msgOnboard, msgPulse, msgExtractBroken,
		"yes", "no", "cancel", "hello", "maybe", "what is the payroll date",
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pending implies complete, no intent implies empty", prop.ForAll(
		func(steps []int, failing []bool) bool {
			oracle := newFakeOracle(defaultReplies())
			sub := &recordingSubmitter{}
			store := NewMemorySessionStore()
			registry := workflow.DefaultRegistry()
			f, err := NewFlow(oracle, oracle, sub, WithStore(store), WithRegistry(registry))
			if err != nil {
				return false
			}
			for i, step := range steps {
				if i < len(failing) && failing[i] {
					sub.setErr(types.ErrSubmission)
				} else {
					sub.setErr(nil)
				}
				res, err := f.Handle(context.Background(), "u1", script[step])
				if err != nil {
					return false
				}
				if res.Status == types.StatusConfirm && len(res.Missing) != 0 {
					return false
				}
				sess, err := store.GetOrCreate(context.Background(), "u1")
				if err != nil {
					return false
				}
				if sess.PendingConfirmation && (sess.Intent == "" || len(registry.Missing(sess.Intent, sess.Fields)) != 0) {
					return false
				}
				if sess.Intent == "" && (len(sess.Fields) != 0 || sess.PendingConfirmation) {
					return false
				}
				for _, v := range sess.Fields {
					if !workflow.Truthy(v) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(script)-1)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
