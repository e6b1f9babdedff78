package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/transport"
	"github.com/botmesh/botmesh/internal/transport/memory"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		prefix   string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{".ping", ".", "ping", []string{}, true},
		{".resize 500 500", ".", "resize", []string{"500", "500"}, true},
		{"hello", ".", "", nil, false},
		{".", ".", "", nil, false},
		{".PING", ".", "ping", []string{}, true},
		{".tagall   everyone  here", ".", "tagall", []string{"everyone", "here"}, true},
		{"!menu", "!", "menu", []string{}, true},
		{"!menu", ".", "", nil, false},
	}

	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text, tt.prefix)
		assert.Equal(t, tt.wantOK, ok, "text %q", tt.text)
		if !tt.wantOK {
			continue
		}
		assert.Equal(t, tt.wantName, name, "text %q", tt.text)
		assert.ElementsMatch(t, tt.wantArgs, args, "text %q", tt.text)
	}
}

func testConn(t *testing.T) *memory.Conn {
	t.Helper()
	tr := memory.New()
	conn, err := tr.Connect(context.Background(), "94770000001", nil)
	require.NoError(t, err)
	return conn.(*memory.Conn)
}

func textMessage(conversation, sender, text string) *transport.Message {
	return &transport.Message{
		Key: transport.MessageKey{
			ConversationID: conversation,
			Participant:    sender,
			ID:             "MSG1",
		},
		Body: &transport.Body{Conversation: text},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OwnerNumber = "999"
	return cfg
}

func TestDispatcher_InvokesHandler(t *testing.T) {
	var got *Request
	registry := NewRegistry(&Command{
		Name: "ping",
		Handler: func(ctx context.Context, req *Request) error {
			got = req
			return req.Reply(ctx, "pong")
		},
	})
	d := New(registry, testConfig())
	conn := testConn(t)

	d.HandleMessage(context.Background(), conn, textMessage("123@s.whatsapp.net", "", ".ping"))

	require.NotNil(t, got, "handler was not invoked")
	assert.Equal(t, "ping", got.Command)
	assert.Empty(t, got.Args)
	assert.Equal(t, "123@s.whatsapp.net", got.Sender)

	sent := conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pong", sent[0].Content.Text)
	require.NotNil(t, sent[0].Options)
	assert.NotNil(t, sent[0].Options.Quoted, "replies must quote the template")
}

func TestDispatcher_ArgsAndAliases(t *testing.T) {
	var gotArgs []string
	registry := NewRegistry(&Command{
		Name:    "resize",
		Aliases: []string{"rs"},
		Handler: func(ctx context.Context, req *Request) error {
			gotArgs = req.Args
			return nil
		},
	})
	d := New(registry, testConfig())
	conn := testConn(t)

	d.HandleMessage(context.Background(), conn, textMessage("1@s.whatsapp.net", "", ".rs 500 500"))
	assert.Equal(t, []string{"500", "500"}, gotArgs)
}

func TestDispatcher_DropsNonCommands(t *testing.T) {
	invoked := false
	registry := NewRegistry(&Command{
		Name:    "ping",
		Handler: func(ctx context.Context, req *Request) error { invoked = true; return nil },
	})
	d := New(registry, testConfig())
	conn := testConn(t)
	ctx := context.Background()

	// No prefix.
	d.HandleMessage(ctx, conn, textMessage("1@s.whatsapp.net", "", "hello"))
	// No body at all.
	d.HandleMessage(ctx, conn, &transport.Message{Key: transport.MessageKey{ConversationID: "1@s.whatsapp.net"}})
	// Status channel.
	d.HandleMessage(ctx, conn, textMessage(transport.StatusBroadcast, "1@s.whatsapp.net", ".ping"))
	// Unknown command.
	d.HandleMessage(ctx, conn, textMessage("1@s.whatsapp.net", "", ".nosuch"))

	assert.False(t, invoked)
	assert.Empty(t, conn.Sent())
}

func TestDispatcher_UnwrapsEphemeralAndCaptions(t *testing.T) {
	var invocations []string
	registry := NewRegistry(&Command{
		Name: "sticker",
		Handler: func(ctx context.Context, req *Request) error {
			invocations = append(invocations, req.Command)
			return nil
		},
	})
	d := New(registry, testConfig())
	conn := testConn(t)
	ctx := context.Background()

	ephemeral := &transport.Message{
		Key: transport.MessageKey{ConversationID: "1@s.whatsapp.net", ID: "M1"},
		Body: &transport.Body{
			Ephemeral: &transport.Body{Conversation: ".sticker"},
		},
	}
	d.HandleMessage(ctx, conn, ephemeral)

	caption := &transport.Message{
		Key: transport.MessageKey{ConversationID: "1@s.whatsapp.net", ID: "M2"},
		Body: &transport.Body{
			Image: &transport.Media{Caption: ".sticker"},
		},
	}
	d.HandleMessage(ctx, conn, caption)

	assert.Len(t, invocations, 2)
}

func TestDispatcher_OwnerOnlyDenied(t *testing.T) {
	invoked := false
	registry := NewRegistry(&Command{
		Name:    "broadcast",
		Auth:    AuthOwnerOnly,
		Handler: func(ctx context.Context, req *Request) error { invoked = true; return nil },
	})
	d := New(registry, testConfig())
	conn := testConn(t)

	d.HandleMessage(context.Background(), conn,
		textMessage("111@s.whatsapp.net", "", ".broadcast hi"))

	assert.False(t, invoked, "handler must not run for non-owner")
	sent := conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, deniedReply, sent[0].Content.Text)
}

func TestDispatcher_OwnerOnlyAllowed(t *testing.T) {
	invoked := false
	registry := NewRegistry(&Command{
		Name:    "broadcast",
		Auth:    AuthOwnerOnly,
		Handler: func(ctx context.Context, req *Request) error { invoked = true; return nil },
	})
	d := New(registry, testConfig())
	conn := testConn(t)

	d.HandleMessage(context.Background(), conn,
		textMessage("999@s.whatsapp.net", "", ".broadcast hi"))

	assert.True(t, invoked)
}

func TestDispatcher_GroupAdmin(t *testing.T) {
	invoked := 0
	registry := NewRegistry(&Command{
		Name:    "kick",
		Auth:    AuthGroupAdmin,
		Handler: func(ctx context.Context, req *Request) error { invoked++; return nil },
	})
	d := New(registry, testConfig())
	conn := testConn(t)
	ctx := context.Background()

	group := "12036@g.us"
	conn.SetGroupMetadata(&transport.GroupMetadata{
		ID: group,
		Participants: []transport.GroupParticipant{
			{ID: "admin@s.whatsapp.net", Admin: true},
			{ID: "member@s.whatsapp.net"},
		},
		Created: time.Now(),
	})

	// Group admin passes.
	d.HandleMessage(ctx, conn, textMessage(group, "admin@s.whatsapp.net", ".kick"))
	assert.Equal(t, 1, invoked)

	// Plain member is denied.
	d.HandleMessage(ctx, conn, textMessage(group, "member@s.whatsapp.net", ".kick"))
	assert.Equal(t, 1, invoked)

	// Owner passes even without group admin.
	d.HandleMessage(ctx, conn, textMessage(group, "999@s.whatsapp.net", ".kick"))
	assert.Equal(t, 2, invoked)

	// Outside a group the command is denied for non-owners.
	d.HandleMessage(ctx, conn, textMessage("x@s.whatsapp.net", "", ".kick"))
	assert.Equal(t, 2, invoked)
}

func TestDispatcher_HandlerFaultIsolated(t *testing.T) {
	registry := NewRegistry(
		&Command{
			Name:    "boom",
			Handler: func(ctx context.Context, req *Request) error { panic("kaboom") },
		},
		&Command{
			Name:    "fail",
			Handler: func(ctx context.Context, req *Request) error { return errors.New("nope") },
		},
	)
	d := New(registry, testConfig())
	conn := testConn(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		d.HandleMessage(ctx, conn, textMessage("1@s.whatsapp.net", "", ".boom"))
	})
	d.HandleMessage(ctx, conn, textMessage("1@s.whatsapp.net", "", ".fail"))

	sent := conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, failureReply, sent[0].Content.Text)
	assert.Equal(t, failureReply, sent[1].Content.Text)
}

func TestRegistry_ByCategory(t *testing.T) {
	registry := NewRegistry(
		&Command{Name: "ping", Category: "core"},
		&Command{Name: "menu", Category: "core"},
		&Command{Name: "kick", Category: "group"},
	)
	grouped := registry.ByCategory()
	assert.ElementsMatch(t, []string{"ping", "menu"}, grouped["core"])
	assert.ElementsMatch(t, []string{"kick"}, grouped["group"])
}
