package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adamavenir/cwthread/internal/store"
	"github.com/adamavenir/cwthread/internal/types"
)

const defaultNameLength = 50

// MessageSource fetches messages from the remote chat service.
type MessageSource interface {
	GetMessage(ctx context.Context, roomID, messageID string) (types.Message, error)
	GetMessages(ctx context.Context, roomID string, forceRefresh bool) ([]types.Message, error)
}

// CreateOptions controls thread creation.
type CreateOptions struct {
	Name        string
	Description *string
	// ForceDouble skips the duplicate guard so a message may root several threads.
	ForceDouble bool
}

// Assembler discovers related messages and persists them as threads.
type Assembler struct {
	source MessageSource
	store  store.Store
	guard  *Guard
	logger *zap.Logger
}

// NewAssembler wires an assembler to its collaborators.
func NewAssembler(source MessageSource, st store.Store, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		source: source,
		store:  st,
		guard:  NewGuard(st),
		logger: logger,
	}
}

// CreateThread builds a thread rooted at ref from every message transitively
// related to it. Messages and memberships are persisted in one transaction.
func (a *Assembler) CreateThread(ctx context.Context, ref types.MessageRef, opts CreateOptions) (types.Thread, error) {
	if ref.MessageID == "" {
		return types.Thread{}, errors.New("root message id is required")
	}
	if ref.RoomID == "" {
		return types.Thread{}, fmt.Errorf("room id is required for message %s", ref.MessageID)
	}

	log := a.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("room_id", ref.RoomID),
		zap.String("root_message_id", ref.MessageID),
	)

	if !opts.ForceDouble {
		if err := a.guard.Ensure(ctx, ref.MessageID); err != nil {
			log.Debug("duplicate guard rejected root", zap.Error(err))
			return types.Thread{}, err
		}
	}

	root, pool, err := a.fetchRootAndPool(ctx, ref)
	if err != nil {
		return types.Thread{}, err
	}
	log.Debug("fetched room history", zap.Int("pool_size", len(pool)))

	related, err := Expand(root.ID, pool)
	if err != nil {
		return types.Thread{}, err
	}
	log.Debug("expanded thread", zap.Int("related", len(related)))

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultThreadName(root)
	}

	var thread types.Thread
	err = a.store.RunAtomically(ctx, func(tx store.Store) error {
		for _, msg := range pool {
			if err := tx.SaveMessage(ctx, msg); err != nil {
				return fmt.Errorf("save message %s: %w", msg.ID, err)
			}
		}

		created, err := tx.CreateThread(ctx, name, opts.Description)
		if err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		if err := tx.AddMembership(ctx, created.GUID, root.ID, types.RelationshipRoot); err != nil {
			return fmt.Errorf("add root membership: %w", err)
		}
		for _, msg := range related {
			if msg.ID == root.ID {
				continue
			}
			if err := tx.AddMembership(ctx, created.GUID, msg.ID, Classify(msg.Content)); err != nil {
				return fmt.Errorf("add membership %s: %w", msg.ID, err)
			}
		}

		refreshed, err := tx.GetThread(ctx, created.GUID)
		if err != nil {
			return err
		}
		if refreshed != nil {
			created = *refreshed
		}
		thread = created
		return nil
	})
	if err != nil {
		return types.Thread{}, &types.AnalysisError{MessageID: root.ID, Op: "persist thread", Err: err}
	}

	log.Info("thread created",
		zap.String("thread", thread.GUID),
		zap.Int("messages", len(related)),
	)
	return thread, nil
}

// fetchRootAndPool loads the root message and the full room history concurrently.
// The root is appended to the pool when the room listing does not include it.
func (a *Assembler) fetchRootAndPool(ctx context.Context, ref types.MessageRef) (types.Message, []types.Message, error) {
	var root types.Message
	var pool []types.Message

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msg, err := a.source.GetMessage(gctx, ref.RoomID, ref.MessageID)
		if err != nil {
			return err
		}
		root = msg
		return nil
	})
	g.Go(func() error {
		messages, err := a.source.GetMessages(gctx, ref.RoomID, true)
		if err != nil {
			return err
		}
		pool = messages
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.Message{}, nil, wrapFetchError(ref.MessageID, err)
	}

	if root.RoomID == "" {
		root.RoomID = ref.RoomID
	}
	found := false
	for i := range pool {
		if pool[i].RoomID == "" {
			pool[i].RoomID = ref.RoomID
		}
		if pool[i].ID == root.ID {
			found = true
		}
	}
	if !found {
		pool = append(pool, root)
	}
	return root, pool, nil
}

// AddMessageToThread fetches a single message and inserts or replaces its
// membership in the thread. An empty relationship type means manual.
func (a *Assembler) AddMessageToThread(ctx context.Context, threadRef string, ref types.MessageRef, rel types.RelationshipType) (types.Message, error) {
	if rel == "" {
		rel = types.RelationshipManual
	}
	if !rel.Valid() {
		return types.Message{}, fmt.Errorf("invalid relationship type: %s", rel)
	}
	if rel == types.RelationshipRoot {
		return types.Message{}, errors.New("root membership is assigned only when a thread is created")
	}

	thread, err := a.resolveThread(ctx, threadRef)
	if err != nil {
		return types.Message{}, err
	}

	existing, err := a.store.GetMembership(ctx, thread.GUID, ref.MessageID)
	if err != nil {
		return types.Message{}, &types.AnalysisError{MessageID: ref.MessageID, Op: "load membership", Err: err}
	}
	if existing != nil && existing.RelationshipType == types.RelationshipRoot {
		return types.Message{}, fmt.Errorf("message %s is the root of thread %s", ref.MessageID, thread.GUID)
	}

	if ref.RoomID == "" {
		ref.RoomID, err = a.threadRoom(ctx, thread.GUID)
		if err != nil {
			return types.Message{}, err
		}
	}

	msg, err := a.source.GetMessage(ctx, ref.RoomID, ref.MessageID)
	if err != nil {
		return types.Message{}, wrapFetchError(ref.MessageID, err)
	}
	if msg.RoomID == "" {
		msg.RoomID = ref.RoomID
	}

	err = a.store.RunAtomically(ctx, func(tx store.Store) error {
		if err := tx.SaveMessage(ctx, msg); err != nil {
			return err
		}
		return tx.AddMembership(ctx, thread.GUID, msg.ID, rel)
	})
	if err != nil {
		return types.Message{}, &types.AnalysisError{MessageID: msg.ID, Op: "add message", Err: err}
	}

	a.logger.Info("message added to thread",
		zap.String("thread", thread.GUID),
		zap.String("message_id", msg.ID),
		zap.String("relationship", string(rel)),
	)
	return msg, nil
}

// RemoveMessageFromThread deletes a membership. It fails without touching the
// store when the message is not a member, and refuses to remove the root.
func (a *Assembler) RemoveMessageFromThread(ctx context.Context, threadRef, messageID string) error {
	thread, err := a.resolveThread(ctx, threadRef)
	if err != nil {
		return err
	}
	membership, err := a.store.GetMembership(ctx, thread.GUID, messageID)
	if err != nil {
		return &types.AnalysisError{MessageID: messageID, Op: "load membership", Err: err}
	}
	if membership == nil {
		return &types.NotFoundError{Kind: "membership", ID: thread.GUID + "/" + messageID}
	}
	if membership.RelationshipType == types.RelationshipRoot {
		return fmt.Errorf("message %s is the root of thread %s and cannot be removed", messageID, thread.GUID)
	}
	if err := a.store.RemoveMembership(ctx, thread.GUID, messageID); err != nil {
		return &types.AnalysisError{MessageID: messageID, Op: "remove membership", Err: err}
	}
	a.logger.Info("message removed from thread",
		zap.String("thread", thread.GUID),
		zap.String("message_id", messageID),
	)
	return nil
}

// RefreshThread refetches the room and adds every message newly reachable from
// the current members. Existing memberships are left untouched. The returned
// messages are the ones added, ordered by send time.
func (a *Assembler) RefreshThread(ctx context.Context, threadRef, roomID string) ([]types.Message, error) {
	thread, err := a.resolveThread(ctx, threadRef)
	if err != nil {
		return nil, err
	}
	log := a.logger.With(zap.String("run_id", uuid.NewString()), zap.String("thread", thread.GUID))

	members, err := a.store.GetThreadMessages(ctx, thread.GUID)
	if err != nil {
		return nil, &types.AnalysisError{Op: "load thread messages", Err: err}
	}
	if roomID == "" {
		roomID = roomOf(members)
	}
	if roomID == "" {
		return nil, fmt.Errorf("thread %s has no cached messages; pass a room id", thread.GUID)
	}

	pool, err := a.source.GetMessages(ctx, roomID, true)
	if err != nil {
		return nil, wrapFetchError("", err)
	}
	for i := range pool {
		if pool[i].RoomID == "" {
			pool[i].RoomID = roomID
		}
	}

	seeds := make([]types.Message, 0, len(members))
	memberIDs := make(map[string]struct{}, len(members))
	for _, member := range members {
		seeds = append(seeds, member.Message)
		memberIDs[member.ID] = struct{}{}
	}

	var added []types.Message
	for _, msg := range ExpandFrom(seeds, pool) {
		if _, ok := memberIDs[msg.ID]; ok {
			continue
		}
		added = append(added, msg)
	}
	log.Debug("refresh expanded thread", zap.Int("pool_size", len(pool)), zap.Int("new", len(added)))

	err = a.store.RunAtomically(ctx, func(tx store.Store) error {
		for _, msg := range pool {
			if err := tx.SaveMessage(ctx, msg); err != nil {
				return fmt.Errorf("save message %s: %w", msg.ID, err)
			}
		}
		for _, msg := range added {
			if err := tx.AddMembership(ctx, thread.GUID, msg.ID, Classify(msg.Content)); err != nil {
				return fmt.Errorf("add membership %s: %w", msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &types.AnalysisError{Op: "refresh thread", Err: err}
	}

	log.Info("thread refreshed", zap.Int("added", len(added)))
	return added, nil
}

func (a *Assembler) resolveThread(ctx context.Context, ref string) (*types.Thread, error) {
	thread, err := a.store.ResolveThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, types.NewThreadNotFound(ref)
	}
	return thread, nil
}

func (a *Assembler) threadRoom(ctx context.Context, threadGUID string) (string, error) {
	members, err := a.store.GetThreadMessages(ctx, threadGUID)
	if err != nil {
		return "", err
	}
	room := roomOf(members)
	if room == "" {
		return "", fmt.Errorf("cannot determine room for thread %s; pass a room id or message URL", threadGUID)
	}
	return room, nil
}

func roomOf(members []types.ThreadMessage) string {
	for _, member := range members {
		if member.RoomID != "" {
			return member.RoomID
		}
	}
	return ""
}

func wrapFetchError(messageID string, err error) error {
	var notFound *types.NotFoundError
	if errors.As(err, &notFound) {
		return notFound
	}
	return &types.AnalysisError{MessageID: messageID, Op: "fetch messages", Err: err}
}

func defaultThreadName(root types.Message) string {
	body := strings.Join(strings.Fields(root.Content), " ")
	if body == "" {
		return "Thread: " + root.ID
	}
	if utf8.RuneCountInString(body) <= defaultNameLength {
		return "Thread: " + body
	}
	runes := []rune(body)
	return "Thread: " + string(runes[:defaultNameLength]) + "..."
}
