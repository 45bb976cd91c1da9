// Package web exposes the formwork engine to a UI runtime over HTTP: schema
// and visible-field queries, draft lifecycle operations, commits, and lookup
// reads. It is a thin facade; all semantics live in the engine packages.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/draft"
	"github.com/formwork-ui/formwork/internal/lookup"
	"github.com/formwork-ui/formwork/internal/mutation"
	"github.com/formwork-ui/formwork/internal/readcache"
	"github.com/formwork-ui/formwork/internal/schema"
)

// Server wires the engine components behind a chi router.
type Server struct {
	schemas *schema.Loader
	drafts  *draft.Engine
	coord   *mutation.Coordinator
	lookups *lookup.Cache
	cache   *readcache.Cache
	logger  *zap.Logger
}

// NewServer creates the HTTP facade.
func NewServer(
	schemas *schema.Loader,
	drafts *draft.Engine,
	coord *mutation.Coordinator,
	lookups *lookup.Cache,
	cache *readcache.Cache,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		schemas: schemas,
		drafts:  drafts,
		coord:   coord,
		lookups: lookups,
		cache:   cache,
		logger:  logger,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(Recovery(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/schemas/{entityType}", s.handleGetSchema)
		r.Get("/schemas/{entityType}/fields", s.handleGetVisibleFields)

		r.Route("/drafts/{entityType}/{instanceID}", func(r chi.Router) {
			r.Post("/", s.handleStartEdit)
			r.Get("/", s.handleGetDraft)
			r.Delete("/", s.handleDiscard)
			r.Put("/fields/{fieldKey}", s.handleSetField)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Post("/resume", s.handleResume)
			r.Post("/commit", s.handleCommit)
		})

		r.Get("/instances/{entityType}/{instanceID}", s.handleGetInstance)
		r.Get("/lookups/{sourceKind}/{sourceKey}", s.handleGetLookup)
		r.Post("/lookups/{sourceKind}/{sourceKey}/prime", s.handlePrimeLookup)
	})

	return r
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	es, err := s.schemas.Load(r.Context(), entityType)
	if err != nil {
		var schemaErr *schema.SchemaError
		if errors.As(err, &schemaErr) {
			writeError(w, http.StatusUnprocessableEntity, string(schemaErr.Code), schemaErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "schema-fetch-failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity_type": es.EntityType(),
		"fingerprint": es.Fingerprint(),
		"fields":      es.Fields(),
	})
}

// handleGetVisibleFields serves the field list for a consumer context, or the
// editable fields when mode=edit. Mode is a separate parameter so a consumer
// context may itself be named "edit".
func (s *Server) handleGetVisibleFields(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	consumerCtx := r.URL.Query().Get("context")
	mode := r.URL.Query().Get("mode")

	es, err := s.schemas.Load(r.Context(), entityType)
	if err != nil {
		writeError(w, http.StatusBadGateway, "schema-fetch-failed", err.Error())
		return
	}

	var fields []schema.FieldDescriptor
	if mode == "edit" {
		fields = es.EditableFields()
	} else {
		fields = es.FieldsVisibleFor(consumerCtx)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity_type": es.EntityType(),
		"context":     consumerCtx,
		"mode":        mode,
		"fields":      fields,
	})
}

func (s *Server) handleStartEdit(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	var baseline map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&baseline); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-body", "baseline must be a JSON object")
		return
	}

	_, err := s.drafts.StartEdit(r.Context(), entityType, instanceID, baseline)
	if err != nil {
		var active *draft.AlreadyActiveError
		if errors.As(err, &active) {
			writeError(w, http.StatusConflict, "draft-already-active", err.Error())
			return
		}
		var persistErr *draft.PersistenceError
		if errors.As(err, &persistErr) {
			// Draft is live in memory; warn the client it is not durable
			writeJSON(w, http.StatusCreated, map[string]interface{}{"degraded": true})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"degraded": false})
}

func (s *Server) draftState(d *draft.Draft) map[string]interface{} {
	return map[string]interface{}{
		"entity_type":  d.EntityType,
		"instance_id":  d.InstanceID,
		"baseline":     d.Baseline(),
		"overlay":      d.Overlay(),
		"changed_keys": d.ChangedKeys(),
		"can_undo":     d.CanUndo(),
		"can_redo":     d.CanRedo(),
	}
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	d, ok := s.drafts.Get(entityType, instanceID)
	if !ok {
		writeError(w, http.StatusNotFound, "no-draft", "no active draft")
		return
	}
	writeJSON(w, http.StatusOK, s.draftState(d))
}

// draftMutation runs op and maps draft errors onto HTTP statuses shared by
// the set-field/undo/redo handlers.
func (s *Server) draftMutation(w http.ResponseWriter, r *http.Request, op func(entityType, instanceID string) error) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	err := op(entityType, instanceID)
	if err != nil {
		var noDraft *draft.NoDraftError
		if errors.As(err, &noDraft) {
			writeError(w, http.StatusNotFound, "no-draft", err.Error())
			return
		}
		var persistErr *draft.PersistenceError
		if errors.As(err, &persistErr) {
			// The edit applied in memory; report degraded durability
			d, _ := s.drafts.Get(entityType, instanceID)
			state := s.draftState(d)
			state["degraded"] = true
			writeJSON(w, http.StatusOK, state)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	d, ok := s.drafts.Get(entityType, instanceID)
	if !ok {
		writeError(w, http.StatusNotFound, "no-draft", "no active draft")
		return
	}
	writeJSON(w, http.StatusOK, s.draftState(d))
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	fieldKey := chi.URLParam(r, "fieldKey")

	var body struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-body", "expected {\"value\": ...}")
		return
	}

	s.draftMutation(w, r, func(entityType, instanceID string) error {
		return s.drafts.SetField(r.Context(), entityType, instanceID, fieldKey, body.Value)
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.draftMutation(w, r, func(entityType, instanceID string) error {
		return s.drafts.Undo(r.Context(), entityType, instanceID)
	})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.draftMutation(w, r, func(entityType, instanceID string) error {
		return s.drafts.Redo(r.Context(), entityType, instanceID)
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	d, err := s.drafts.Resume(r.Context(), entityType, instanceID)
	if err != nil {
		var noDraft *draft.NoDraftError
		if errors.As(err, &noDraft) {
			writeError(w, http.StatusNotFound, "no-draft", err.Error())
			return
		}
		var active *draft.AlreadyActiveError
		if errors.As(err, &active) {
			writeError(w, http.StatusConflict, "draft-already-active", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.draftState(d))
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	if err := s.drafts.Discard(r.Context(), entityType, instanceID); err != nil {
		var noDraft *draft.NoDraftError
		if errors.As(err, &noDraft) {
			writeError(w, http.StatusNotFound, "no-draft", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	d, ok := s.drafts.Get(entityType, instanceID)
	if !ok {
		writeError(w, http.StatusNotFound, "no-draft", "no active draft")
		return
	}

	h, err := s.coord.Commit(r.Context(), d)
	if err != nil {
		var inProgress *mutation.CommitInProgressError
		if errors.As(err, &inProgress) {
			writeError(w, http.StatusConflict, "commit-in-progress", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	// A clean draft resolves immediately; report it as committed
	select {
	case <-h.Done():
		if h.Err() != nil {
			writeError(w, http.StatusBadGateway, "persistence-failed", h.Err().Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        string(h.Status()),
			"optimistic_id": h.OptimisticID(),
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":        string(h.Status()),
			"optimistic_id": h.OptimisticID(),
		})
	}
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	instanceID := chi.URLParam(r, "instanceID")

	values, confirmed, ok := s.cache.Get(entityType, instanceID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown-instance", "instance not cached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"values":    values,
		"confirmed": confirmed,
	})
}

func (s *Server) handleGetLookup(w http.ResponseWriter, r *http.Request) {
	kind := schema.SourceKind(chi.URLParam(r, "sourceKind"))
	key := chi.URLParam(r, "sourceKey")

	entry := s.lookups.Get(kind, key)
	if entry == nil {
		// Never populated: the client renders a loading affordance and may
		// prime explicitly
		writeError(w, http.StatusNotFound, "not-populated", "lookup not populated")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handlePrimeLookup(w http.ResponseWriter, r *http.Request) {
	kind := schema.SourceKind(chi.URLParam(r, "sourceKind"))
	key := chi.URLParam(r, "sourceKey")

	if err := s.lookups.Prime(r.Context(), kind, key); err != nil {
		writeError(w, http.StatusBadGateway, "prime-failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.lookups.Get(kind, key))
}
