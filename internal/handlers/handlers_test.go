package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/registry"
	"github.com/botmesh/botmesh/internal/store"
	"github.com/botmesh/botmesh/internal/transport"
	"github.com/botmesh/botmesh/internal/transport/memory"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	cfg := config.Default()
	cfg.OwnerName = "Owner"
	cfg.OwnerNumber = "999"
	return &Deps{
		Cfg:       cfg,
		Toggles:   config.NewToggles(cfg),
		Store:     store.NewDocumentStore(t.TempDir()),
		Registry:  registry.New(),
		StartedAt: time.Now().Add(-time.Minute),
	}
}

func testRequest(t *testing.T, conversation string, args ...string) (*dispatch.Request, *memory.Conn) {
	t.Helper()
	tr := memory.New()
	conn, err := tr.Connect(context.Background(), "94770000001", nil)
	require.NoError(t, err)
	mc := conn.(*memory.Conn)
	return &dispatch.Request{
		Conn:           mc,
		ConversationID: conversation,
		Sender:         "888@s.whatsapp.net",
		Args:           args,
		Message: &transport.Message{
			Key:  transport.MessageKey{ConversationID: conversation, ID: "M1"},
			Body: &transport.Body{Conversation: "x"},
		},
	}, mc
}

func lastReply(t *testing.T, conn *memory.Conn) string {
	t.Helper()
	sent := conn.Sent()
	require.NotEmpty(t, sent, "expected a reply")
	return sent[len(sent)-1].Content.Text
}

func TestCommands_RegistersFullSet(t *testing.T) {
	reg := testDeps(t).Commands()

	for _, name := range []string{
		"menu", "alive", "ping", "owner", "delete",
		"groupinfo", "add", "kick", "promote", "demote", "mute", "unmute",
		"grouplink", "revoke", "tagall", "welcome", "antilink",
		"weather", "quote", "meme", "news", "define", "translate", "shorturl", "calc",
		"broadcast", "autoreact", "autoread",
	} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "command %s missing", name)
	}

	// Aliases resolve to their primaries.
	cmd, ok := reg.Lookup("help")
	require.True(t, ok)
	assert.Equal(t, "menu", cmd.Name)
	cmd, ok = reg.Lookup("bc")
	require.True(t, ok)
	assert.Equal(t, "broadcast", cmd.Name)
}

func TestMenu_ListsEveryCommand(t *testing.T) {
	deps := testDeps(t)
	reg := deps.Commands()
	req, conn := testRequest(t, "1@s.whatsapp.net")

	cmd, _ := reg.Lookup("menu")
	require.NoError(t, cmd.Handler(context.Background(), req))

	text := lastReply(t, conn)
	for _, cmd := range reg.Commands() {
		assert.Contains(t, text, deps.Cfg.Prefix+cmd.Name)
	}
}

func TestAlive_ReportsUptimeAndSessions(t *testing.T) {
	deps := testDeps(t)
	req, conn := testRequest(t, "1@s.whatsapp.net")

	require.NoError(t, deps.alive(context.Background(), req))
	text := lastReply(t, conn)
	assert.Contains(t, text, "alive")
	assert.Contains(t, text, "sessions: 0")
}

func TestGroupHandlers_RejectDirectChats(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	for _, h := range []dispatch.HandlerFunc{
		deps.groupInfo, deps.kickMember, deps.muteGroup, deps.tagAll, deps.welcomeToggle,
	} {
		req, conn := testRequest(t, "1@s.whatsapp.net", "on")
		require.NoError(t, h(ctx, req))
		assert.Equal(t, groupOnlyReply, lastReply(t, conn))
	}
}

func TestKick_UsesArgumentNumber(t *testing.T) {
	deps := testDeps(t)
	req, conn := testRequest(t, "1@g.us", "+94 71 222 3333")

	require.NoError(t, deps.kickMember(context.Background(), req))

	ops := conn.GroupOps()
	require.Len(t, ops, 1)
	assert.Equal(t, "participants:1@g.us:remove", ops[0])
	assert.Contains(t, lastReply(t, conn), "94712223333")
}

func TestKick_PrefersQuotedAuthor(t *testing.T) {
	deps := testDeps(t)
	req, conn := testRequest(t, "1@g.us")
	req.Message.Body.QuotedKey = &transport.MessageKey{
		ConversationID: "1@g.us",
		Participant:    "777@s.whatsapp.net",
		ID:             "Q1",
	}

	require.NoError(t, deps.kickMember(context.Background(), req))
	assert.Contains(t, lastReply(t, conn), "777")
}

func TestTagAll_MentionsEveryMember(t *testing.T) {
	deps := testDeps(t)
	req, conn := testRequest(t, "1@g.us")
	conn.SetGroupMetadata(&transport.GroupMetadata{
		ID:      "1@g.us",
		Subject: "Test Group",
		Participants: []transport.GroupParticipant{
			{ID: "111@s.whatsapp.net"},
			{ID: "222@s.whatsapp.net", Admin: true},
		},
	})

	require.NoError(t, deps.tagAll(context.Background(), req))

	sent := conn.Sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Content.Mentions, 2)
	assert.Contains(t, sent[0].Content.Text, "@111")
	assert.Contains(t, sent[0].Content.Text, "@222")
}

func TestWelcomeToggle_PersistsSetting(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	req, _ := testRequest(t, "1@g.us", "on")
	require.NoError(t, deps.welcomeToggle(ctx, req))

	settings, err := deps.Store.GetGroupSettings(ctx, "1@g.us")
	require.NoError(t, err)
	assert.True(t, settings.Welcome)
	assert.False(t, settings.AntiLink)

	req, _ = testRequest(t, "1@g.us", "off")
	require.NoError(t, deps.welcomeToggle(ctx, req))
	settings, err = deps.Store.GetGroupSettings(ctx, "1@g.us")
	require.NoError(t, err)
	assert.False(t, settings.Welcome)
}

func TestAntiLinkToggle_KeepsWelcomeIntact(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	req, _ := testRequest(t, "1@g.us", "on")
	require.NoError(t, deps.welcomeToggle(ctx, req))
	req, _ = testRequest(t, "1@g.us", "on")
	require.NoError(t, deps.antiLinkToggle(ctx, req))

	settings, err := deps.Store.GetGroupSettings(ctx, "1@g.us")
	require.NoError(t, err)
	assert.True(t, settings.Welcome)
	assert.True(t, settings.AntiLink)
}

func TestGroupToggle_RejectsBadArgument(t *testing.T) {
	deps := testDeps(t)
	req, conn := testRequest(t, "1@g.us", "maybe")

	require.NoError(t, deps.welcomeToggle(context.Background(), req))
	assert.Contains(t, lastReply(t, conn), "Usage:")
}

func TestBroadcast_DeliversToKnownIdentities(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()
	require.NoError(t, deps.Store.AddKnownIdentity(ctx, "111"))
	require.NoError(t, deps.Store.AddKnownIdentity(ctx, "222"))

	req, conn := testRequest(t, "999@s.whatsapp.net", "hello", "world")
	require.NoError(t, deps.broadcast(ctx, req))

	sent := conn.Sent()
	require.Len(t, sent, 3) // two deliveries plus the summary reply
	destinations := []string{sent[0].ConversationID, sent[1].ConversationID}
	assert.ElementsMatch(t, destinations,
		[]string{"111@s.whatsapp.net", "222@s.whatsapp.net"})
	assert.True(t, strings.Contains(sent[0].Content.Text, "hello world"))
	assert.Contains(t, sent[2].Content.Text, "2/2")
}

func TestAutoToggles_FlipRuntimeState(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()

	req, _ := testRequest(t, "999@s.whatsapp.net", "off")
	require.NoError(t, deps.autoReactToggle(ctx, req))
	assert.False(t, deps.Toggles.AutoReact())

	req, _ = testRequest(t, "999@s.whatsapp.net", "off")
	require.NoError(t, deps.autoReadToggle(ctx, req))
	assert.False(t, deps.Toggles.AutoView())

	req, _ = testRequest(t, "999@s.whatsapp.net", "on")
	require.NoError(t, deps.autoReadToggle(ctx, req))
	assert.True(t, deps.Toggles.AutoView())
}
