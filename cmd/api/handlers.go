package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docuchat/docuchat/engine/catalog"
	"github.com/docuchat/docuchat/engine/domain"
	"github.com/docuchat/docuchat/engine/ingest"
	"github.com/docuchat/docuchat/engine/retrieve"
)

// The handlers depend on interfaces so they can be exercised without the
// real stores behind them.

type chatService interface {
	AnswerQuestion(ctx context.Context, externalID, question string) (domain.Answer, error)
}

type ingestService interface {
	IngestBatch(ctx context.Context, jobs []ingest.Job) ingest.BatchResult
	ProvisionUser(ctx context.Context, u domain.User) (domain.User, error)
	DeleteDocument(ctx context.Context, externalID, documentID string) error
	Rebuild(ctx context.Context, externalID string) (ingest.RebuildResult, error)
}

type api struct {
	chat      chatService
	ingest    ingestService
	users     catalog.Users
	docs      catalog.Documents
	templates *retrieve.TemplateStore
	enqueue   func(ctx context.Context, job ingest.Job) error // nil when NATS is absent
	log       *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrEmbedding), errors.Is(err, domain.ErrIndex):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createUserRequest struct {
	ExternalID string `json:"auth0_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Lang       string `json:"lang"`
}

func (a *api) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	user, err := a.ingest.ProvisionUser(r.Context(), domain.User{
		ExternalID: req.ExternalID,
		Username:   req.Username,
		Email:      req.Email,
		Lang:       req.Lang,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("auth0_id")
	if externalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "auth0_id is required"})
		return
	}
	user, err := a.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type uploadRequest struct {
	ExternalID string       `json:"user_auth0_id"`
	Files      []uploadFile `json:"files"`
}

type uploadFile struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	FileSize int64  `json:"file_size"`
}

func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no files in upload"})
		return
	}

	jobs := make([]ingest.Job, len(req.Files))
	for i, f := range req.Files {
		jobs[i] = ingest.Job{
			ExternalID: req.ExternalID,
			Filename:   f.Filename,
			Text:       f.Text,
			FileSize:   f.FileSize,
		}
	}

	if r.URL.Query().Get("async") == "1" && a.enqueue != nil {
		for _, job := range jobs {
			if err := a.enqueue(r.Context(), job); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": len(jobs)})
		return
	}

	res := a.ingest.IngestBatch(r.Context(), jobs)
	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

func (a *api) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("user_auth0_id")
	if externalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_auth0_id is required"})
		return
	}
	user, err := a.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := a.docs.ListByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Document text can be large; listings carry metadata only.
	type docMeta struct {
		ID        string `json:"id"`
		Filename  string `json:"filename"`
		Lang      string `json:"lang"`
		FileSize  int64  `json:"fileSize"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]docMeta, len(docs))
	for i, d := range docs {
		out[i] = docMeta{
			ID:        d.ID,
			Filename:  d.Filename,
			Lang:      d.Lang,
			FileSize:  d.FileSize,
			CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("user_auth0_id")
	documentID := r.PathValue("id")
	if externalID == "" || documentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_auth0_id and document id are required"})
		return
	}
	if err := a.ingest.DeleteDocument(r.Context(), externalID, documentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Question   string `json:"question"`
	ExternalID string `json:"user_auth0_id"`
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	answer, err := a.chat.AnswerQuestion(r.Context(), req.ExternalID, req.Question)
	if err != nil {
		a.log.ErrorContext(r.Context(), "chat failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type languageRequest struct {
	ExternalID string `json:"user_auth0_id"`
	Lang       string `json:"lang"`
}

func (a *api) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("user_auth0_id")
	user, err := a.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lang": user.Lang})
}

func (a *api) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !domain.SupportedLangs[req.Lang] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported language " + req.Lang})
		return
	}
	user, err := a.users.GetByExternalID(r.Context(), req.ExternalID)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := a.users.SetLang(r.Context(), user.ID, req.Lang)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lang": updated.Lang})
}

func (a *api) handleGetTemplate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"prompt_template": a.templates.Get()})
}

func (a *api) handleSetTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"prompt_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.templates.Set(req.Template)
	writeJSON(w, http.StatusOK, map[string]string{"prompt_template": a.templates.Get()})
}

func (a *api) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID string `json:"user_auth0_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res, err := a.ingest.Rebuild(r.Context(), req.ExternalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/users", a.handleCreateUser)
	mux.HandleFunc("GET /api/users", a.handleGetUser)
	mux.HandleFunc("POST /api/upload", a.handleUpload)
	mux.HandleFunc("GET /api/documents", a.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents/{id}", a.handleDeleteDocument)
	mux.HandleFunc("POST /api/chat", a.handleChat)
	mux.HandleFunc("GET /api/language", a.handleGetLanguage)
	mux.HandleFunc("PUT /api/language", a.handleSetLanguage)
	mux.HandleFunc("GET /api/template", a.handleGetTemplate)
	mux.HandleFunc("PUT /api/template", a.handleSetTemplate)
	mux.HandleFunc("POST /api/reindex", a.handleReindex)
	return mux
}
