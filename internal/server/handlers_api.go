package server

import (
	"net/http"
	"sort"
	"time"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bot":      s.cfg.BotName,
		"sessions": s.registry.Count(),
		"commands": len(s.commands.Commands()),
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type commandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	byCategory := make(map[string][]commandInfo)
	for _, cmd := range s.commands.Commands() {
		byCategory[cmd.Category] = append(byCategory[cmd.Category], commandInfo{
			Name:        cmd.Name,
			Aliases:     cmd.Aliases,
			Description: cmd.Description,
		})
	}
	for _, infos := range byCategory {
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	}
	writeJSON(w, http.StatusOK, byCategory)
}

type sessionInfo struct {
	Identity  string    `json:"identity"`
	StartedAt time.Time `json:"startedAt"`
	Uptime    string    `json:"uptime"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := make([]sessionInfo, 0, s.registry.Count())
	for _, identity := range s.registry.Identities() {
		session, ok := s.registry.Get(identity)
		if !ok {
			continue
		}
		sessions = append(sessions, sessionInfo{
			Identity:  session.Identity,
			StartedAt: session.StartedAt,
			Uptime:    session.Uptime().Round(time.Second).String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
