// Package service implements the message router: it validates every
// conversation-scoped request against the participant set, persists through
// the stores, and fans events out to live connections. Fan-out is
// best-effort; a failed push is never an operation failure.
package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"chatwire/logger"
	chatmodel "chatwire/module/chat/model"
	usermodel "chatwire/module/user/model"
	"chatwire/tools/errs"
)

type ConversationStore interface {
	Insert(ctx context.Context, c *chatmodel.Conversation) error
	FindByID(ctx context.Context, id string) (*chatmodel.Conversation, error)
	FindDirect(ctx context.Context, a, b string) (*chatmodel.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]chatmodel.Conversation, error)
	UpdateSummary(ctx context.Context, id, lastMessage string, at time.Time) error
}

type MessageStore interface {
	Insert(ctx context.Context, m *chatmodel.Message) error
	ListByConversation(ctx context.Context, convID string) ([]chatmodel.Message, error)
	Latest(ctx context.Context, convID string) (*chatmodel.Message, error)
	MarkRead(ctx context.Context, convID, readerID string) (int64, error)
}

type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*usermodel.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]usermodel.User, error)
}

// Pusher is the gateway surface the router fans out through.
//
// PushRoom delivers to every joined connection subscribed to the
// conversation, except the connection skipConnID and every connection owned
// by skipUserID. PushUser delivers to all of one user's connections
// regardless of join state (used for new_conversation only). Subscribe adds
// the listed users' already-joined connections to the conversation's room.
type Pusher interface {
	PushRoom(convID, skipConnID, skipUserID string, ev Event)
	PushUser(userID string, ev Event)
	Subscribe(convID string, userIDs []string)
}

type Router struct {
	convs  ConversationStore
	msgs   MessageStore
	users  UserDirectory
	pusher Pusher
}

func NewRouter(convs ConversationStore, msgs MessageStore, users UserDirectory, pusher Pusher) *Router {
	return &Router{convs: convs, msgs: msgs, users: users, pusher: pusher}
}

// authorize loads the conversation and checks membership. A missing
// conversation and a foreign one produce the same authorization error.
func (r *Router) authorize(ctx context.Context, userID, convID string) (*chatmodel.Conversation, error) {
	conv, err := r.convs.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrAuthorization
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.ErrAuthorization
	}
	return conv, nil
}

// SendMessage implements the send path: validate, persist, refresh the
// summary, fan out. originConnID identifies the live connection that issued
// the send (empty for REST sends); that exact connection never receives the
// new_message echo.
func (r *Router) SendMessage(ctx context.Context, senderID, originConnID, convID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrValidation.WithDetail("message content is empty")
	}
	conv, err := r.authorize(ctx, senderID, convID)
	if err != nil {
		return nil, err
	}
	sender, err := r.users.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &chatmodel.Message{ConversationID: conv.ID, SenderID: senderID, Content: content}
	if err := r.msgs.Insert(ctx, msg); err != nil {
		return nil, err
	}
	// Summary refresh failure is not a send failure: the message is durable
	// and ListConversations re-derives the newest message anyway.
	if err := r.convs.UpdateSummary(ctx, conv.ID, content, msg.CreatedAt); err != nil {
		logger.Errorf("send: summary refresh failed conv=%s: %v", conv.ID, err)
	}

	view := messageView(msg, sender.Public())
	r.pusher.PushRoom(conv.ID, originConnID, "", Event{Name: EventNewMessage, Data: view})
	return &view, nil
}

// MarkRead flips every unread message addressed to readerID in the
// conversation and, when anything changed, tells the other participants'
// connections. Re-invoking with nothing unread is a no-op, not an error.
func (r *Router) MarkRead(ctx context.Context, readerID, convID string) error {
	conv, err := r.authorize(ctx, readerID, convID)
	if err != nil {
		return err
	}
	n, err := r.msgs.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	r.pusher.PushRoom(conv.ID, "", readerID, Event{
		Name: EventMessagesRead,
		Data: ReadReceipt{ConversationID: conv.ID, UserID: readerID},
	})
	return nil
}

// CreateParams mirrors the conversation-create request body. Participants
// excludes the creator, matching the client contract.
type CreateParams struct {
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"isGroup"`
	Name         string   `json:"name"`
}

// Create builds a conversation for the creator. Direct conversations are
// get-or-create; group conversations are always new.
func (r *Router) Create(ctx context.Context, creatorID string, in CreateParams) (*ConversationView, error) {
	if in.IsGroup {
		return r.createGroup(ctx, creatorID, in.Name, in.Participants)
	}
	if len(in.Participants) != 1 {
		return nil, errs.ErrValidation.WithDetail("a direct conversation needs exactly one other participant")
	}
	return r.GetOrCreateDirect(ctx, creatorID, in.Participants[0])
}

// GetOrCreateDirect returns the existing non-group conversation whose
// participant set is exactly {creatorID, otherID}, creating it when absent.
// Calling twice yields the same conversation id.
func (r *Router) GetOrCreateDirect(ctx context.Context, creatorID, otherID string) (*ConversationView, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" || otherID == creatorID {
		return nil, errs.ErrValidation.WithDetail("invalid participant")
	}
	if _, err := r.users.FindByID(ctx, otherID); err != nil {
		return nil, err
	}

	conv, err := r.convs.FindDirect(ctx, creatorID, otherID)
	switch {
	case err == nil:
		return r.conversationView(ctx, conv)
	case errors.Is(err, errs.ErrNotFound):
		// fall through to create
	default:
		return nil, err
	}

	conv = &chatmodel.Conversation{
		Participants: []string{creatorID, otherID},
		IsGroup:      false,
		CreatedBy:    creatorID,
	}
	if err := r.convs.Insert(ctx, conv); err != nil {
		return nil, err
	}
	return r.announceCreated(ctx, conv, creatorID)
}

func (r *Router) createGroup(ctx context.Context, creatorID, name string, participantIDs []string) (*ConversationView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.ErrValidation.WithDetail("a group conversation needs a name")
	}
	members := dedupe(append(participantIDs, creatorID))
	if len(members) < 3 {
		return nil, errs.ErrValidation.WithDetail("a group conversation needs at least two other participants")
	}
	found, err := r.users.FindByIDs(ctx, members)
	if err != nil {
		return nil, err
	}
	for _, id := range members {
		if _, ok := found[id]; !ok {
			return nil, errs.ErrNotFound.WithDetail("user")
		}
	}

	conv := &chatmodel.Conversation{
		Participants: members,
		IsGroup:      true,
		Name:         name,
		CreatedBy:    creatorID,
	}
	if err := r.convs.Insert(ctx, conv); err != nil {
		return nil, err
	}
	return r.announceCreated(ctx, conv, creatorID)
}

// announceCreated subscribes every participant's already-joined connections
// to the new room and pushes new_conversation to everyone but the creator,
// so the other side's list updates without a refetch.
func (r *Router) announceCreated(ctx context.Context, conv *chatmodel.Conversation, creatorID string) (*ConversationView, error) {
	view, err := r.conversationView(ctx, conv)
	if err != nil {
		return nil, err
	}
	r.pusher.Subscribe(conv.ID, conv.Participants)
	for _, uid := range conv.OtherParticipants(creatorID) {
		r.pusher.PushUser(uid, Event{Name: EventNewConversation, Data: *view})
	}
	return view, nil
}

// ListConversations returns the caller's conversations with the newest
// message re-derived from the message store; the cached summary is only a
// fallback for empty threads.
func (r *Router) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	convs, err := r.convs.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(convs)*2)
	for i := range convs {
		ids = append(ids, convs[i].Participants...)
	}
	profiles, err := r.users.FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		view := baseView(c, profiles)
		latest, err := r.msgs.Latest(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			view.LastMessage = latest.Content
			if u, ok := profiles[latest.SenderID]; ok {
				p := u.Public()
				view.LastMessageSender = &p
			}
			if latest.CreatedAt.After(view.UpdatedAt) {
				view.UpdatedAt = latest.CreatedAt
			}
		}
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// ListMessages returns the full thread ascending by created_at. Fetching a
// thread implies having read it: everything addressed to the caller is
// marked read and the receipt event goes out before the call returns.
func (r *Router) ListMessages(ctx context.Context, readerID, convID string) ([]MessageView, error) {
	conv, err := r.authorize(ctx, readerID, convID)
	if err != nil {
		return nil, err
	}
	msgs, err := r.msgs.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]string, 0, len(msgs))
	for i := range msgs {
		senderIDs = append(senderIDs, msgs[i].SenderID)
	}
	profiles, err := r.users.FindByIDs(ctx, dedupe(senderIDs))
	if err != nil {
		return nil, err
	}

	n, err := r.msgs.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		r.pusher.PushRoom(conv.ID, "", readerID, Event{
			Name: EventMessagesRead,
			Data: ReadReceipt{ConversationID: conv.ID, UserID: readerID},
		})
	}

	out := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		var sender usermodel.PublicProfile
		if u, ok := profiles[m.SenderID]; ok {
			sender = u.Public()
		}
		v := messageView(m, sender)
		if m.SenderID != readerID {
			// reflect the mark-read side effect in the response
			v.Read = true
		}
		out = append(out, v)
	}
	return out, nil
}

// ConversationIDs lists the ids of every conversation the user belongs to.
// The gateway uses it to subscribe a connection on join_conversations.
func (r *Router) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	convs, err := r.convs.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(convs))
	for i := range convs {
		out = append(out, convs[i].ID)
	}
	return out, nil
}

func (r *Router) conversationView(ctx context.Context, conv *chatmodel.Conversation) (*ConversationView, error) {
	profiles, err := r.users.FindByIDs(ctx, conv.Participants)
	if err != nil {
		return nil, err
	}
	view := baseView(conv, profiles)
	return &view, nil
}

func baseView(c *chatmodel.Conversation, profiles map[string]usermodel.User) ConversationView {
	parts := make([]usermodel.PublicProfile, 0, len(c.Participants))
	for _, id := range c.Participants {
		if u, ok := profiles[id]; ok {
			parts = append(parts, u.Public())
		}
	}
	return ConversationView{
		ID:           c.ID,
		Participants: parts,
		IsGroup:      c.IsGroup,
		Name:         c.Name,
		LastMessage:  c.LastMessage,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
