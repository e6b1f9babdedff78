// Package handlers implements the bot's command set. Commands are plain
// functions over dispatch.Request; Deps carries the shared collaborators
// they close over.
package handlers

import (
	"time"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/registry"
	"github.com/botmesh/botmesh/internal/store"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Cfg       *config.Config
	Toggles   *config.Toggles
	Store     store.Store
	Registry  *registry.Registry
	StartedAt time.Time
}

// Commands builds the full command registry.
func (d *Deps) Commands() *dispatch.Registry {
	reg := dispatch.NewRegistry()

	reg.Register(&dispatch.Command{
		Name: "menu", Aliases: []string{"help"}, Category: "core",
		Description: "List every command",
		Handler:     d.menu(reg),
	})
	reg.Register(&dispatch.Command{
		Name: "alive", Category: "core",
		Description: "Show bot status and uptime",
		Handler:     d.alive,
	})
	reg.Register(&dispatch.Command{
		Name: "ping", Category: "core",
		Description: "Measure response latency",
		Handler:     d.ping,
	})
	reg.Register(&dispatch.Command{
		Name: "owner", Category: "core",
		Description: "Show the owner's contact",
		Handler:     d.owner,
	})
	reg.Register(&dispatch.Command{
		Name: "delete", Aliases: []string{"del"}, Category: "core",
		Description: "Delete the quoted message",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.deleteMessage,
	})

	reg.Register(&dispatch.Command{
		Name: "groupinfo", Aliases: []string{"ginfo"}, Category: "group",
		Description: "Show group details",
		Handler:     d.groupInfo,
	})
	reg.Register(&dispatch.Command{
		Name: "add", Category: "group",
		Description: "Add a member by number",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.addMember,
	})
	reg.Register(&dispatch.Command{
		Name: "kick", Aliases: []string{"remove"}, Category: "group",
		Description: "Remove a member",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.kickMember,
	})
	reg.Register(&dispatch.Command{
		Name: "promote", Category: "group",
		Description: "Make a member admin",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.promoteMember,
	})
	reg.Register(&dispatch.Command{
		Name: "demote", Category: "group",
		Description: "Revoke a member's admin",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.demoteMember,
	})
	reg.Register(&dispatch.Command{
		Name: "mute", Category: "group",
		Description: "Restrict the group to admins",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.muteGroup,
	})
	reg.Register(&dispatch.Command{
		Name: "unmute", Category: "group",
		Description: "Open the group to everyone",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.unmuteGroup,
	})
	reg.Register(&dispatch.Command{
		Name: "grouplink", Aliases: []string{"link"}, Category: "group",
		Description: "Get the group invite link",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.groupLink,
	})
	reg.Register(&dispatch.Command{
		Name: "revoke", Category: "group",
		Description: "Revoke the group invite link",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.revokeLink,
	})
	reg.Register(&dispatch.Command{
		Name: "tagall", Aliases: []string{"everyone"}, Category: "group",
		Description: "Mention every member",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.tagAll,
	})
	reg.Register(&dispatch.Command{
		Name: "welcome", Category: "group",
		Description: "Toggle welcome messages: welcome on|off",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.welcomeToggle,
	})
	reg.Register(&dispatch.Command{
		Name: "antilink", Category: "group",
		Description: "Toggle link removal: antilink on|off",
		Auth:        dispatch.AuthGroupAdmin,
		Handler:     d.antiLinkToggle,
	})

	reg.Register(&dispatch.Command{
		Name: "weather", Category: "lookup",
		Description: "Current weather for a city",
		Handler:     d.weather,
	})
	reg.Register(&dispatch.Command{
		Name: "quote", Category: "lookup",
		Description: "A random quote",
		Handler:     d.quote,
	})
	reg.Register(&dispatch.Command{
		Name: "meme", Category: "lookup",
		Description: "A random meme",
		Handler:     d.meme,
	})
	reg.Register(&dispatch.Command{
		Name: "news", Category: "lookup",
		Description: "Top headlines",
		Handler:     d.news,
	})
	reg.Register(&dispatch.Command{
		Name: "define", Aliases: []string{"dict"}, Category: "lookup",
		Description: "Dictionary definition of a word",
		Handler:     d.define,
	})
	reg.Register(&dispatch.Command{
		Name: "translate", Aliases: []string{"tr"}, Category: "lookup",
		Description: "Translate text: translate <lang> <text>",
		Handler:     d.translate,
	})
	reg.Register(&dispatch.Command{
		Name: "shorturl", Aliases: []string{"short"}, Category: "lookup",
		Description: "Shorten a URL",
		Handler:     d.shortURL,
	})
	reg.Register(&dispatch.Command{
		Name: "calc", Category: "lookup",
		Description: "Evaluate an arithmetic expression",
		Handler:     d.calc,
	})

	reg.Register(&dispatch.Command{
		Name: "broadcast", Aliases: []string{"bc"}, Category: "owner",
		Description: "Message every known number",
		Auth:        dispatch.AuthOwnerOnly,
		Handler:     d.broadcast,
	})
	reg.Register(&dispatch.Command{
		Name: "autoreact", Category: "owner",
		Description: "Toggle status auto-react: autoreact on|off",
		Auth:        dispatch.AuthOwnerOnly,
		Handler:     d.autoReactToggle,
	})
	reg.Register(&dispatch.Command{
		Name: "autoread", Category: "owner",
		Description: "Toggle status auto-view: autoread on|off",
		Auth:        dispatch.AuthOwnerOnly,
		Handler:     d.autoReadToggle,
	})

	return reg
}

// parseOnOff interprets an on/off argument. ok is false for anything else.
func parseOnOff(args []string) (on, ok bool) {
	if len(args) != 1 {
		return false, false
	}
	switch args[0] {
	case "on", "enable", "true":
		return true, true
	case "off", "disable", "false":
		return false, true
	}
	return false, false
}
