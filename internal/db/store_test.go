package db

import (
	"context"
	"errors"
	"testing"

	"github.com/adamavenir/cwthread/internal/store"
	"github.com/adamavenir/cwthread/internal/types"
)

func TestRunAtomicallyRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var guid string
	err := s.RunAtomically(ctx, func(tx store.Store) error {
		if err := tx.SaveMessage(ctx, types.Message{ID: "1", RoomID: "100", Content: "root", SendTime: 100}); err != nil {
			return err
		}
		thread, err := tx.CreateThread(ctx, "doomed", nil)
		if err != nil {
			return err
		}
		guid = thread.GUID
		if err := tx.AddMembership(ctx, thread.GUID, "1", types.RelationshipRoot); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	thread, err := s.GetThread(ctx, guid)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if thread != nil {
		t.Fatal("expected thread rolled back")
	}
	msg, err := s.GetMessage(ctx, "1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg != nil {
		t.Fatal("expected message rolled back")
	}
}

func TestRunAtomicallyNestedJoinsOuter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RunAtomically(ctx, func(tx store.Store) error {
		if err := tx.SaveMessage(ctx, types.Message{ID: "1", RoomID: "100", Content: "a", SendTime: 1}); err != nil {
			return err
		}
		return tx.RunAtomically(ctx, func(inner store.Store) error {
			return inner.SaveMessage(ctx, types.Message{ID: "2", RoomID: "100", Content: "b", SendTime: 2})
		})
	})
	if err != nil {
		t.Fatalf("run atomically: %v", err)
	}

	for _, id := range []string{"1", "2"} {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if msg == nil {
			t.Fatalf("expected message %s committed", id)
		}
	}
}
