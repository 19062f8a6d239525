package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/export"
)

type sessionMessagesResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
}

type profileResponse struct {
	Name      string         `json:"name"`
	Headline  string         `json:"headline,omitempty"`
	Data      map[string]any `json:"data"`
	HasResume bool           `json:"has_resume"`
	LoadedAt  time.Time      `json:"loaded_at"`
}

type modelCatalogResponse struct {
	Provider    string             `json:"provider"`
	ActiveModel string             `json:"active_model"`
	Models      []domain.ModelInfo `json:"models"`
}

func (rt *Router) apiChat(w http.ResponseWriter, r *http.Request) {
	var req domain.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := usecase.WithChannel(r.Context(), usecase.ChannelAPI)
	turn, err := rt.chat.Ask(ctx, req)
	if err != nil {
		noteSession(r, req.SessionID)
		writeError(w, r, err)
		return
	}
	noteSession(r, turn.SessionID)
	writeJSON(w, http.StatusOK, turn)
}

func (rt *Router) apiSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	noteSession(r, id)
	messages, err := rt.chat.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, sessionMessagesResponse{SessionID: id, Messages: messages})
}

func (rt *Router) apiDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	noteSession(r, id)
	if err := rt.chat.Reset(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) apiExportSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	noteSession(r, id)
	messages, err := rt.chat.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Render fully before writing headers so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := export.WriteTranscript(&buf, messages); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) apiProfile(w http.ResponseWriter, _ *http.Request) {
	profile := rt.chat.Profile()
	data := profile.Data
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Name:      profile.Name,
		Headline:  profile.Headline,
		Data:      data,
		HasResume: profile.ResumeText != "",
		LoadedAt:  profile.LoadedAt,
	})
}

func (rt *Router) apiModels(w http.ResponseWriter, r *http.Request) {
	models, err := rt.listModels(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modelCatalogResponse{
		Provider:    rt.chat.ProviderName(),
		ActiveModel: rt.chat.ModelName(),
		Models:      models,
	})
}

func (rt *Router) listModels(r *http.Request) ([]domain.ModelInfo, error) {
	if rt.models == nil {
		return []domain.ModelInfo{}, nil
	}
	models, err := rt.models.List(r.Context())
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []domain.ModelInfo{}
	}
	return models, nil
}
