package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatmodel "chatwire/module/chat/model"
	usermodel "chatwire/module/user/model"
	"chatwire/tools/errs"
)

// ---- in-memory fakes ----

type memConvStore struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*chatmodel.Conversation
}

func newMemConvStore() *memConvStore {
	return &memConvStore{byID: make(map[string]*chatmodel.Conversation)}
}

func (s *memConvStore) Insert(_ context.Context, c *chatmodel.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = "conv-" + strconv.Itoa(s.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

func (s *memConvStore) FindByID(_ context.Context, id string) (*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("conversation")
	}
	cp := *c
	return &cp, nil
}

func (s *memConvStore) FindDirect(_ context.Context, a, b string) (*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.IsGroup || len(c.Participants) != 2 {
			continue
		}
		if (c.Participants[0] == a && c.Participants[1] == b) ||
			(c.Participants[0] == b && c.Participants[1] == a) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound.WithDetail("conversation")
}

func (s *memConvStore) ListByParticipant(_ context.Context, userID string) ([]chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chatmodel.Conversation
	for _, c := range s.byID {
		for _, p := range c.Participants {
			if p == userID {
				out = append(out, *c)
				break
			}
		}
	}
	return out, nil
}

func (s *memConvStore) UpdateSummary(_ context.Context, id, lastMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UpdatedAt.After(at) {
		return nil
	}
	c.LastMessage = lastMessage
	c.UpdatedAt = at
	return nil
}

type memMsgStore struct {
	mu   sync.Mutex
	seq  int
	msgs []chatmodel.Message
}

func (s *memMsgStore) Insert(_ context.Context, m *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m.ID = "msg-" + strconv.Itoa(s.seq)
	// strictly increasing timestamps keep ordering deterministic
	m.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	m.Read = false
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *memMsgStore) ListByConversation(_ context.Context, convID string) ([]chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chatmodel.Message
	for _, m := range s.msgs {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMsgStore) Latest(_ context.Context, convID string) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *chatmodel.Message
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.ConversationID != convID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *memMsgStore) MarkRead(_ context.Context, convID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.ConversationID == convID && m.SenderID != readerID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

type memUserDir struct {
	users map[string]usermodel.User
}

func (d *memUserDir) FindByID(_ context.Context, id string) (*usermodel.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("user")
	}
	return &u, nil
}

func (d *memUserDir) FindByIDs(_ context.Context, ids []string) (map[string]usermodel.User, error) {
	out := make(map[string]usermodel.User)
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type roomPush struct {
	ConvID     string
	SkipConnID string
	SkipUserID string
	Ev         Event
}

type userPush struct {
	UserID string
	Ev     Event
}

type recordingPusher struct {
	mu    sync.Mutex
	rooms []roomPush
	users []userPush
	subs  map[string][]string
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{subs: make(map[string][]string)}
}

func (p *recordingPusher) PushRoom(convID, skipConnID, skipUserID string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, roomPush{convID, skipConnID, skipUserID, ev})
}

func (p *recordingPusher) PushUser(userID string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userPush{userID, ev})
}

func (p *recordingPusher) Subscribe(convID string, userIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[convID] = append(p.subs[convID], userIDs...)
}

// ---- fixture ----

type fixture struct {
	convs  *memConvStore
	msgs   *memMsgStore
	users  *memUserDir
	pusher *recordingPusher
	router *Router
}

func newFixture() *fixture {
	f := &fixture{
		convs:  newMemConvStore(),
		msgs:   &memMsgStore{},
		pusher: newRecordingPusher(),
		users: &memUserDir{users: map[string]usermodel.User{
			"alice": {ID: "alice", Name: "Alice", Email: "alice@example.com"},
			"bob":   {ID: "bob", Name: "Bob", Email: "bob@example.com"},
			"carol": {ID: "carol", Name: "Carol", Email: "carol@example.com"},
		}},
	}
	f.router = NewRouter(f.convs, f.msgs, f.users, f.pusher)
	return f
}

func (f *fixture) directConv(t *testing.T, a, b string) *chatmodel.Conversation {
	t.Helper()
	c := &chatmodel.Conversation{Participants: []string{a, b}, CreatedBy: a}
	require.NoError(t, f.convs.Insert(context.Background(), c))
	return c
}

// ---- send path ----

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "alice", "c1", conv.ID, "   ")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, f.pusher.rooms)
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "carol", "c1", conv.ID, "hi")
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	// unknown conversation looks exactly like a foreign one
	_, err = f.router.SendMessage(context.Background(), "alice", "c1", "missing", "hi")
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	assert.Empty(t, f.msgs.msgs)
}

func TestSendMessagePersistsAndFansOut(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	view, err := f.router.SendMessage(context.Background(), "alice", "conn-a1", conv.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", view.Content)
	assert.False(t, view.Read)
	assert.Equal(t, "Alice", view.Sender.Name)

	require.Len(t, f.msgs.msgs, 1)
	assert.Equal(t, "alice", f.msgs.msgs[0].SenderID)
	assert.False(t, f.msgs.msgs[0].Read)

	stored, err := f.convs.FindByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.LastMessage)

	require.Len(t, f.pusher.rooms, 1)
	push := f.pusher.rooms[0]
	assert.Equal(t, EventNewMessage, push.Ev.Name)
	assert.Equal(t, conv.ID, push.ConvID)
	// the issuing connection never gets its own echo
	assert.Equal(t, "conn-a1", push.SkipConnID)
	assert.Empty(t, push.SkipUserID)
}

// ---- read-receipt path ----

func TestMarkReadFlipsOnlyOthersMessages(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "alice", "", conv.ID, "one")
	require.NoError(t, err)
	_, err = f.router.SendMessage(context.Background(), "bob", "", conv.ID, "two")
	require.NoError(t, err)

	require.NoError(t, f.router.MarkRead(context.Background(), "bob", conv.ID))

	for _, m := range f.msgs.msgs {
		if m.SenderID == "alice" {
			assert.True(t, m.Read, "alice's message should be read")
		} else {
			assert.False(t, m.Read, "bob's own message must stay unread")
		}
	}

	require.Len(t, f.pusher.rooms, 3) // two new_message + one messages_read
	receipt := f.pusher.rooms[2]
	assert.Equal(t, EventMessagesRead, receipt.Ev.Name)
	// the reader's own connections are excluded from the receipt
	assert.Equal(t, "bob", receipt.SkipUserID)
	assert.Equal(t, ReadReceipt{ConversationID: conv.ID, UserID: "bob"}, receipt.Ev.Data)
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "alice", "", conv.ID, "hi")
	require.NoError(t, err)

	require.NoError(t, f.router.MarkRead(context.Background(), "bob", conv.ID))
	pushes := len(f.pusher.rooms)

	// nothing unread the second time: no state change, no event, no error
	require.NoError(t, f.router.MarkRead(context.Background(), "bob", conv.ID))
	assert.Len(t, f.pusher.rooms, pushes)
}

func TestMarkReadRequiresMembership(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	err := f.router.MarkRead(context.Background(), "carol", conv.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)
}

// ---- conversation creation ----

func TestGetOrCreateDirectReturnsSameConversation(t *testing.T) {
	f := newFixture()

	first, err := f.router.GetOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	second, err := f.router.GetOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// and from the other side too
	third, err := f.router.GetOrCreateDirect(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	// only the creation announced the conversation
	require.Len(t, f.pusher.users, 1)
	assert.Equal(t, "bob", f.pusher.users[0].UserID)
	assert.Equal(t, EventNewConversation, f.pusher.users[0].Ev.Name)
	assert.Len(t, f.pusher.subs[first.ID], 2)
}

func TestGetOrCreateDirectIgnoresGroups(t *testing.T) {
	f := newFixture()
	group := &chatmodel.Conversation{
		Participants: []string{"alice", "bob", "carol"},
		IsGroup:      true,
		Name:         "everyone",
		CreatedBy:    "alice",
	}
	require.NoError(t, f.convs.Insert(context.Background(), group))

	direct, err := f.router.GetOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, group.ID, direct.ID)
	assert.False(t, direct.IsGroup)
	assert.Len(t, direct.Participants, 2)
}

func TestGetOrCreateDirectValidation(t *testing.T) {
	f := newFixture()

	_, err := f.router.GetOrCreateDirect(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.router.GetOrCreateDirect(context.Background(), "alice", "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateGroupRequiresNameAndMembers(t *testing.T) {
	f := newFixture()

	_, err := f.router.Create(context.Background(), "alice", CreateParams{
		Participants: []string{"bob", "carol"}, IsGroup: true,
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.router.Create(context.Background(), "alice", CreateParams{
		Participants: []string{"bob"}, IsGroup: true, Name: "pair",
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	view, err := f.router.Create(context.Background(), "alice", CreateParams{
		Participants: []string{"bob", "carol"}, IsGroup: true, Name: "everyone",
	})
	require.NoError(t, err)
	assert.True(t, view.IsGroup)
	assert.Equal(t, "everyone", view.Name)
	assert.Len(t, view.Participants, 3)
	// both non-creators hear about it
	assert.Len(t, f.pusher.users, 2)
}

// ---- query surface ----

func TestListConversationsDerivesNewestMessage(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "alice", "", conv.ID, "old")
	require.NoError(t, err)
	_, err = f.router.SendMessage(context.Background(), "bob", "", conv.ID, "new")
	require.NoError(t, err)

	// stale the cache behind the stores' backs
	f.convs.mu.Lock()
	f.convs.byID[conv.ID].LastMessage = "stale"
	f.convs.mu.Unlock()

	views, err := f.router.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "new", views[0].LastMessage)
	require.NotNil(t, views[0].LastMessageSender)
	assert.Equal(t, "bob", views[0].LastMessageSender.ID)
}

func TestListConversationsEmptyThreadKeepsCache(t *testing.T) {
	f := newFixture()
	f.directConv(t, "alice", "bob")

	views, err := f.router.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].LastMessage)
	assert.Nil(t, views[0].LastMessageSender)
}

func TestListMessagesMarksReadAndEmitsReceipt(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.SendMessage(context.Background(), "alice", "", conv.ID, "first")
	require.NoError(t, err)
	_, err = f.router.SendMessage(context.Background(), "alice", "", conv.ID, "second")
	require.NoError(t, err)

	views, err := f.router.ListMessages(context.Background(), "bob", conv.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "first", views[0].Content)
	assert.Equal(t, "second", views[1].Content)
	assert.True(t, views[0].CreatedAt.Before(views[1].CreatedAt))
	for _, v := range views {
		assert.True(t, v.Read, "fetching the thread implies having read it")
	}

	last := f.pusher.rooms[len(f.pusher.rooms)-1]
	assert.Equal(t, EventMessagesRead, last.Ev.Name)
	assert.Equal(t, "bob", last.SkipUserID)

	// the persisted state flipped too
	for _, m := range f.msgs.msgs {
		assert.True(t, m.Read)
	}
}

func TestListMessagesRequiresMembership(t *testing.T) {
	f := newFixture()
	conv := f.directConv(t, "alice", "bob")

	_, err := f.router.ListMessages(context.Background(), "carol", conv.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)
}

func TestConversationIDs(t *testing.T) {
	f := newFixture()
	c1 := f.directConv(t, "alice", "bob")
	c2 := f.directConv(t, "alice", "carol")
	f.directConv(t, "bob", "carol")

	ids, err := f.router.ConversationIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, ids)
}
