package analyzer

import (
	"errors"
	"testing"

	"github.com/adamavenir/cwthread/internal/types"
	"github.com/google/go-cmp/cmp"
)

func msg(id, content string, sendTime int64) types.Message {
	return types.Message{ID: id, RoomID: "100", Content: content, SendTime: sendTime}
}

func ids(messages []types.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestExpandBasicScenario(t *testing.T) {
	pool := []types.Message{
		msg("1", "hello", 100),
		msg("2", "reply: 1", 200),
		msg("3", "unrelated", 300),
	}
	related, err := Expand("1", pool)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(related)); diff != "" {
		t.Fatalf("unexpected closure (-want +got):\n%s", diff)
	}
}

func TestExpandIsTransitiveAndSymmetric(t *testing.T) {
	pool := []types.Message{
		msg("1", "kickoff", 100),
		msg("2", "[rp aid=1 to=100-1] first", 200),
		msg("3", "[qt][qtmeta aid=1 time=1 to=100-2]first[/qt] agreed", 300),
		msg("4", "返信: 3", 400),
		msg("5", "other topic", 500),
		msg("6", "reply: 5", 600),
	}

	want := []string{"1", "2", "3", "4"}
	for _, root := range want {
		related, err := Expand(root, pool)
		if err != nil {
			t.Fatalf("expand %s: %v", root, err)
		}
		if diff := cmp.Diff(want, ids(related)); diff != "" {
			t.Fatalf("expand %s (-want +got):\n%s", root, diff)
		}
	}

	related, err := Expand("6", pool)
	if err != nil {
		t.Fatalf("expand 6: %v", err)
	}
	if diff := cmp.Diff([]string{"5", "6"}, ids(related)); diff != "" {
		t.Fatalf("expand 6 (-want +got):\n%s", diff)
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	pool := []types.Message{
		msg("1", "a", 100),
		msg("2", "reply: 1", 200),
		msg("3", "quote: 2", 300),
	}
	first, err := Expand("1", pool)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := Expand("1", pool)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expand not idempotent (-first +second):\n%s", diff)
	}
}

func TestExpandEdgeCases(t *testing.T) {
	pool := []types.Message{
		msg("1", "reply: 1 (self)", 100),
		msg("2", "reply: 999", 200),
		msg("2", "reply: 1", 250),
	}
	related, err := Expand("1", pool)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(related)); diff != "" {
		t.Fatalf("unexpected closure (-want +got):\n%s", diff)
	}
	if related[1].SendTime != 250 {
		t.Fatalf("expected later duplicate to win, got send time %d", related[1].SendTime)
	}

	_, err = Expand("404", pool)
	var notFound *types.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpandFromSeeds(t *testing.T) {
	seeds := []types.Message{msg("1", "old root", 100)}
	pool := []types.Message{
		msg("2", "reply: 1", 200),
		msg("3", "reply: 2", 300),
		msg("4", "noise", 400),
	}
	related := ExpandFrom(seeds, pool)
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids(related)); diff != "" {
		t.Fatalf("unexpected closure (-want +got):\n%s", diff)
	}

	if got := ExpandFrom(nil, pool); len(got) != 0 {
		t.Fatalf("expected empty closure without seeds, got %v", ids(got))
	}
}

func TestExpandDuplicateIDsKeepEveryEdge(t *testing.T) {
	pool := []types.Message{
		msg("1", "root", 100),
		msg("2", "reply: 1", 200),
		msg("2", "edited away", 200),
	}
	related, err := Expand("1", pool)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(related)); diff != "" {
		t.Fatalf("unexpected closure (-want +got):\n%s", diff)
	}
	if related[1].Content != "edited away" {
		t.Fatalf("expected later copy of 2, got %q", related[1].Content)
	}
}

func TestGraphLen(t *testing.T) {
	g := NewGraph([]types.Message{msg("1", "", 1), msg("1", "", 2), msg("2", "", 3)})
	if g.Len() != 2 {
		t.Fatalf("expected 2 distinct messages, got %d", g.Len())
	}
	if !g.Has("2") || g.Has("3") {
		t.Fatal("unexpected membership")
	}
}
