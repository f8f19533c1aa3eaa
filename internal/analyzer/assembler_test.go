package analyzer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/adamavenir/cwthread/internal/db"
	"github.com/adamavenir/cwthread/internal/store"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu       sync.Mutex
	rooms    map[string][]types.Message
	fetchErr error
	calls    int
}

func newFakeSource(roomID string, messages ...types.Message) *fakeSource {
	return &fakeSource{rooms: map[string][]types.Message{roomID: messages}}
}

func (f *fakeSource) GetMessage(ctx context.Context, roomID, messageID string) (types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fetchErr != nil {
		return types.Message{}, f.fetchErr
	}
	for _, m := range f.rooms[roomID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return types.Message{}, types.NewMessageNotFound(messageID)
}

func (f *fakeSource) GetMessages(ctx context.Context, roomID string, forceRefresh bool) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]types.Message, len(f.rooms[roomID]))
	copy(out, f.rooms[roomID])
	return out, nil
}

func (f *fakeSource) add(roomID string, m types.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID] = append(f.rooms[roomID], m)
}

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.InitSchema(context.Background(), conn); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db.NewStore(conn)
}

func roomPool() []types.Message {
	return []types.Message{
		msg("1", "Release planning for v2", 100),
		msg("2", "[rp aid=7 to=100-1] I can take the changelog", 200),
		msg("3", "[qt][qtmeta aid=7 time=200 to=100-2]changelog[/qt] thanks", 300),
		msg("4", "lunch anyone?", 400),
	}
}

func membershipTypes(t *testing.T, st *db.Store, guid string) map[string]types.RelationshipType {
	t.Helper()
	messages, err := st.GetThreadMessages(context.Background(), guid)
	if err != nil {
		t.Fatalf("thread messages: %v", err)
	}
	out := map[string]types.RelationshipType{}
	for _, m := range messages {
		out[m.ID] = m.RelationshipType
	}
	return out
}

func TestCreateThread(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	assembler := NewAssembler(newFakeSource("100", roomPool()...), st, zaptest.NewLogger(t))

	thread, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if thread.Name != "Thread: Release planning for v2" {
		t.Fatalf("unexpected default name: %q", thread.Name)
	}

	want := map[string]types.RelationshipType{
		"1": types.RelationshipRoot,
		"2": types.RelationshipReply,
		"3": types.RelationshipQuote,
	}
	if diff := cmp.Diff(want, membershipTypes(t, st, thread.GUID)); diff != "" {
		t.Fatalf("unexpected memberships (-want +got):\n%s", diff)
	}

	cached, err := st.GetMessage(ctx, "4")
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if cached == nil {
		t.Fatal("expected unrelated pool message to be cached")
	}
}

func TestCreateThreadRootOutsidePool(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	source := newFakeSource("100", msg("2", "reply: 1", 200))
	source.add("100", msg("1", "old root", 100))
	// The room listing only returns recent messages.
	listing := &listingSource{fakeSource: source, recent: []types.Message{msg("2", "reply: 1", 200)}}
	assembler := NewAssembler(listing, st, nil)

	thread, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{Name: "  named  "})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if thread.Name != "named" {
		t.Fatalf("unexpected name: %q", thread.Name)
	}
	got := membershipTypes(t, st, thread.GUID)
	if got["1"] != types.RelationshipRoot || got["2"] != types.RelationshipReply {
		t.Fatalf("unexpected memberships: %v", got)
	}
}

type listingSource struct {
	*fakeSource
	recent []types.Message
}

func (l *listingSource) GetMessages(ctx context.Context, roomID string, forceRefresh bool) ([]types.Message, error) {
	return l.recent, nil
}

func TestCreateThreadDuplicateGuard(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	source := newFakeSource("100", roomPool()...)
	assembler := NewAssembler(source, st, zaptest.NewLogger(t))
	ref := types.MessageRef{RoomID: "100", MessageID: "1"}

	first, err := assembler.CreateThread(ctx, ref, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	source.calls = 0
	_, err = assembler.CreateThread(ctx, ref, CreateOptions{})
	var exists *types.MessageAlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if diff := cmp.Diff([]string{first.GUID}, exists.ThreadIDs); diff != "" {
		t.Fatalf("unexpected conflicting threads (-want +got):\n%s", diff)
	}
	if source.calls != 0 {
		t.Fatalf("expected no remote fetch after guard rejection, got %d calls", source.calls)
	}

	second, err := assembler.CreateThread(ctx, ref, CreateOptions{ForceDouble: true})
	if err != nil {
		t.Fatalf("force double: %v", err)
	}
	check, err := st.CheckMessageInThreads(ctx, "1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(check.ThreadGUIDs) != 2 {
		t.Fatalf("expected root in two threads, got %v", check.ThreadGUIDs)
	}
	if second.GUID == first.GUID {
		t.Fatal("expected a distinct thread")
	}
}

func TestCreateThreadNotFound(t *testing.T) {
	st := openTestStore(t)
	assembler := NewAssembler(newFakeSource("100", roomPool()...), st, nil)

	_, err := assembler.CreateThread(context.Background(), types.MessageRef{RoomID: "100", MessageID: "999"}, CreateOptions{})
	var notFound *types.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = assembler.CreateThread(context.Background(), types.MessageRef{MessageID: "1"}, CreateOptions{})
	if err == nil || !strings.Contains(err.Error(), "room id") {
		t.Fatalf("expected room id error, got %v", err)
	}
}

func TestCreateThreadFetchFailure(t *testing.T) {
	st := openTestStore(t)
	source := newFakeSource("100", roomPool()...)
	source.fetchErr = errors.New("connection reset")
	assembler := NewAssembler(source, st, nil)

	_, err := assembler.CreateThread(context.Background(), types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	var analysis *types.AnalysisError
	if !errors.As(err, &analysis) || analysis.Op != "fetch messages" {
		t.Fatalf("expected fetch analysis error, got %v", err)
	}
}

type failingStore struct {
	store.Store
	failOn string
}

func (f *failingStore) RunAtomically(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.RunAtomically(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, failOn: f.failOn})
	})
}

func (f *failingStore) AddMembership(ctx context.Context, threadGUID, messageID string, rel types.RelationshipType) error {
	if messageID == f.failOn {
		return errors.New("disk full")
	}
	return f.Store.AddMembership(ctx, threadGUID, messageID, rel)
}

func (f *failingStore) RemoveMembership(ctx context.Context, threadGUID, messageID string) error {
	if messageID == f.failOn {
		return errors.New("disk full")
	}
	return f.Store.RemoveMembership(ctx, threadGUID, messageID)
}

func TestCreateThreadRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	assembler := NewAssembler(newFakeSource("100", roomPool()...), &failingStore{Store: st, failOn: "3"}, nil)

	_, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	var analysis *types.AnalysisError
	if !errors.As(err, &analysis) || analysis.Op != "persist thread" {
		t.Fatalf("expected persist analysis error, got %v", err)
	}

	threads, err := st.ListThreads(ctx, types.ThreadQueryOptions{})
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if len(threads) != 0 {
		t.Fatalf("expected no thread after rollback, got %d", len(threads))
	}
	cached, err := st.GetMessage(ctx, "1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if cached != nil {
		t.Fatal("expected cached messages rolled back")
	}
	check, err := st.CheckMessageInThreads(ctx, "1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.Exists {
		t.Fatal("expected no memberships after rollback")
	}
}

func TestAddMessageToThreadTwiceKeepsLastType(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	source := newFakeSource("100", roomPool()...)
	assembler := NewAssembler(source, st, zaptest.NewLogger(t))

	thread, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	if _, err := assembler.AddMessageToThread(ctx, thread.GUID, types.MessageRef{MessageID: "4"}, types.RelationshipReply); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if _, err := assembler.AddMessageToThread(ctx, thread.GUID, types.MessageRef{RoomID: "100", MessageID: "4"}, types.RelationshipQuote); err != nil {
		t.Fatalf("add second: %v", err)
	}

	memberships, err := st.GetMemberships(ctx, thread.GUID)
	if err != nil {
		t.Fatalf("memberships: %v", err)
	}
	count := 0
	for _, m := range memberships {
		if m.MessageID == "4" {
			count++
			if m.RelationshipType != types.RelationshipQuote {
				t.Fatalf("expected quote, got %s", m.RelationshipType)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one membership row, got %d", count)
	}

	if _, err := assembler.AddMessageToThread(ctx, thread.GUID, types.MessageRef{MessageID: "1"}, types.RelationshipManual); err == nil {
		t.Fatal("expected root retype to be refused")
	}
	if _, err := assembler.AddMessageToThread(ctx, thread.GUID, types.MessageRef{MessageID: "4"}, types.RelationshipRoot); err == nil {
		t.Fatal("expected root relationship to be refused")
	}

	var notFound *types.NotFoundError
	_, err = assembler.AddMessageToThread(ctx, "thrd-nothere", types.MessageRef{RoomID: "100", MessageID: "4"}, "")
	if !errors.As(err, &notFound) || notFound.Kind != "thread" {
		t.Fatalf("expected thread not found, got %v", err)
	}
}

func TestRemoveMessageFromThread(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	assembler := NewAssembler(newFakeSource("100", roomPool()...), st, nil)

	thread, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	before, err := st.GetThread(ctx, thread.GUID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}

	var notFound *types.NotFoundError
	if err := assembler.RemoveMessageFromThread(ctx, thread.GUID, "4"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found for non-member, got %v", err)
	}
	after, err := st.GetThread(ctx, thread.GUID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("non-member removal mutated thread (-before +after):\n%s", diff)
	}
	if got := len(membershipTypes(t, st, thread.GUID)); got != 3 {
		t.Fatalf("expected 3 members, got %d", got)
	}

	if err := assembler.RemoveMessageFromThread(ctx, thread.GUID, "1"); err == nil {
		t.Fatal("expected root removal to be refused")
	}
	if err := assembler.RemoveMessageFromThread(ctx, thread.GUID, "3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := membershipTypes(t, st, thread.GUID)["3"]; ok {
		t.Fatal("expected message 3 removed")
	}
}

func TestRemoveMessageFromThreadWrapsStoreFailure(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	thread, err := NewAssembler(newFakeSource("100", roomPool()...), st, nil).
		CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	assembler := NewAssembler(nil, &failingStore{Store: st, failOn: "3"}, nil)
	err = assembler.RemoveMessageFromThread(ctx, thread.GUID, "3")
	var analysis *types.AnalysisError
	if !errors.As(err, &analysis) || analysis.MessageID != "3" || analysis.Op != "remove membership" {
		t.Fatalf("expected remove analysis error for 3, got %v", err)
	}
	if _, ok := membershipTypes(t, st, thread.GUID)["3"]; !ok {
		t.Fatal("expected message 3 to remain a member")
	}
}

func TestRefreshThreadAddsNewReplies(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	source := newFakeSource("100", roomPool()...)
	assembler := NewAssembler(source, st, zaptest.NewLogger(t))

	thread, err := assembler.CreateThread(ctx, types.MessageRef{RoomID: "100", MessageID: "1"}, CreateOptions{})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if _, err := assembler.AddMessageToThread(ctx, thread.GUID, types.MessageRef{MessageID: "4"}, ""); err != nil {
		t.Fatalf("add manual: %v", err)
	}

	source.add("100", msg("5", "返信: 3 done", 500))
	source.add("100", msg("6", "[rp aid=1 to=100-5] great", 600))
	source.add("100", msg("7", "unrelated", 700))

	added, err := assembler.RefreshThread(ctx, thread.Name, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if diff := cmp.Diff([]string{"5", "6"}, ids(added)); diff != "" {
		t.Fatalf("unexpected added messages (-want +got):\n%s", diff)
	}

	got := membershipTypes(t, st, thread.GUID)
	want := map[string]types.RelationshipType{
		"1": types.RelationshipRoot,
		"2": types.RelationshipReply,
		"3": types.RelationshipQuote,
		"4": types.RelationshipManual,
		"5": types.RelationshipReply,
		"6": types.RelationshipReply,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected memberships (-want +got):\n%s", diff)
	}

	again, err := assembler.RefreshThread(ctx, thread.GUID, "100")
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing new, got %v", ids(again))
	}
}

func TestDefaultThreadName(t *testing.T) {
	long := strings.Repeat("あ", 60)
	name := defaultThreadName(types.Message{ID: "1", Content: long})
	if name != "Thread: "+strings.Repeat("あ", 50)+"..." {
		t.Fatalf("unexpected truncated name: %q", name)
	}
	if got := defaultThreadName(types.Message{ID: "9", Content: "  \n "}); got != "Thread: 9" {
		t.Fatalf("unexpected empty-body name: %q", got)
	}
	if got := defaultThreadName(types.Message{ID: "9", Content: "a\n\nb"}); got != "Thread: a b" {
		t.Fatalf("unexpected collapsed name: %q", got)
	}
}
