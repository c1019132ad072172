//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package debug provides an HTTP server for inspecting and driving live
// workflows during development.
package debug

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/craftgen/craftgen-go/editor"
	"github.com/craftgen/craftgen-go/event"
)

// eventBufferSize bounds the in-memory event ring per server.
const eventBufferSize = 512

// Option configures the Server instance.
type Option func(*Server)

// WithEventBuffer overrides the number of recent events kept for the events
// endpoint.
func WithEventBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// Server exposes REST endpoints over a set of live workflow editors.
type Server struct {
	router     *mux.Router
	bufferSize int

	mu        sync.RWMutex
	workflows map[string]*editor.Editor
	events    []*event.Event
}

// New creates a server over the given workflows, keyed by workflow id.
func New(workflows map[string]*editor.Editor, opts ...Option) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		bufferSize: eventBufferSize,
		workflows:  make(map[string]*editor.Editor, len(workflows)),
	}
	for id, e := range workflows {
		s.workflows[id] = e
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// Emitter returns an emitter that feeds the events endpoint; pass it to the
// editors via editor.WithEmitter.
func (s *Server) Emitter() event.Emitter {
	return event.EmitterFunc(func(e *event.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, e)
		if len(s.events) > s.bufferSize {
			s.events = s.events[len(s.events)-s.bufferSize:]
		}
	})
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	s.router.HandleFunc("/api/workflows/{workflowId}", s.handleGetWorkflow).Methods(http.MethodGet)
	s.router.HandleFunc("/api/workflows/{workflowId}/nodes", s.handleListNodes).Methods(http.MethodGet)
	s.router.HandleFunc("/api/workflows/{workflowId}/nodes/{nodeId}", s.handleGetNode).Methods(http.MethodGet)
	s.router.HandleFunc("/api/workflows/{workflowId}/nodes/{nodeId}/values", s.handleSetValues).
		Methods(http.MethodPost)
	s.router.HandleFunc("/api/workflows/{workflowId}/nodes/{nodeId}/run", s.handleRun).
		Methods(http.MethodPost)
	s.router.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
}

func (s *Server) workflow(r *http.Request) (*editor.Editor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.workflows[mux.Vars(r)["workflowId"]]
	return e, ok
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	s.writeJSON(w, map[string]any{"workflows": ids})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.workflow(r)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	runtimes := e.Supervisor().Runtimes()
	nodeIDs := make([]string, 0, len(runtimes))
	for id := range runtimes {
		nodeIDs = append(nodeIDs, id)
	}
	s.writeJSON(w, map[string]any{
		"id":    e.ID(),
		"nodes": nodeIDs,
		"edges": e.Graph().Edges(),
	})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	e, ok := s.workflow(r)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	type nodeSummary struct {
		ID       string            `json:"id"`
		Kind     string            `json:"kind"`
		Status   string            `json:"status"`
		Children map[string]string `json:"children,omitempty"`
	}
	var summaries []nodeSummary
	for id, rt := range e.Supervisor().Runtimes() {
		summaries = append(summaries, nodeSummary{
			ID:       id,
			Kind:     rt.KindName(),
			Status:   string(rt.Status()),
			Children: rt.Children(),
		})
	}
	s.writeJSON(w, map[string]any{"nodes": summaries})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	e, ok := s.workflow(r)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	snapshot, err := e.Supervisor().Snapshot(nodeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, snapshot)
}

func (s *Server) handleSetValues(w http.ResponseWriter, r *http.Request) {
	e, ok := s.workflow(r)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := e.SetValue(mux.Vars(r)["nodeId"], values); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	e, ok := s.workflow(r)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	var body struct {
		InputKey string         `json:"inputKey"`
		Values   map[string]any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	execID, err := e.Run(r.Context(), mux.Vars(r)["nodeId"], body.InputKey, body.Values)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, map[string]any{"executionId": execID})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	events := append([]*event.Event(nil), s.events...)
	s.mu.RUnlock()
	s.writeJSON(w, map[string]any{"events": events})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
