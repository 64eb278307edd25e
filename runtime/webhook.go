//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/stepflow/graph"
	"trpc.group/trpc-go/stepflow/log"
)

// webhookServer exposes webhook entry points over HTTP. Each webhook
// entry point gets a route at its configured path, defaulting to
// /hooks/<entry-point-id> accepting POST.
type webhookServer struct {
	rt   *Runtime
	srv  *http.Server
	addr string
}

func newWebhookServer(rt *Runtime, addr string, origins []string) *webhookServer {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	for _, ep := range rt.graph.EntryPoints() {
		if ep.Trigger != graph.TriggerWebhook {
			continue
		}
		path := ep.TriggerConfig.Path
		if path == "" {
			path = "/hooks/" + ep.ID
		}
		methods := ep.TriggerConfig.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodPost}
		}
		router.HandleFunc(path, rt.handleWebhook(ep)).Methods(methods...)
	}
	router.HandleFunc("/sessions/{sessionID}/resume", rt.handleResume).Methods(http.MethodPost)
	router.HandleFunc("/entrypoints", rt.handleEntryPoints).Methods(http.MethodGet)

	handler := http.Handler(router)
	if len(origins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(router)
	}
	return &webhookServer{
		rt:   rt,
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *webhookServer) start() error {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("webhook server: %v", err)
		}
	}()
	log.Infof("webhook server listening on %s", s.addr)
	return nil
}

func (s *webhookServer) stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (r *Runtime) handleWebhook(ep *graph.EntryPointSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		input := map[string]any{}
		if err := json.NewDecoder(req.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
			return
		}
		if ep.TriggerConfig.Source != "" {
			input["source"] = ep.TriggerConfig.Source
		}
		id, err := r.Trigger(req.Context(), ep.ID, input)
		if err != nil {
			if errors.Is(err, graph.ErrAdmissionRejected) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"invocation_id": id})
	}
}

func (r *Runtime) handleResume(w http.ResponseWriter, req *http.Request) {
	sessionID := mux.Vars(req)["sessionID"]
	input := map[string]any{}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&input)
	}
	result, err := r.Resume(req.Context(), sessionID, input)
	if err != nil {
		if errors.Is(err, graph.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Runtime) handleEntryPoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entry_points": r.Info()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("write response: %v", err)
	}
}
