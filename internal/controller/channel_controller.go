// internal/controller/channel_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adboardhq/adboard-backend/internal/service"
)

type ChannelController struct {
	VerificationService *service.VerificationService
}

func (c *ChannelController) RegisterChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerID           int64  `json:"owner_id"`
		TelegramChannelID int64  `json:"telegram_channel_id"`
		Name              string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	channel, err := c.VerificationService.RegisterChannel(body.OwnerID, body.TelegramChannelID, body.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

func (c *ChannelController) VerifyChannel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}

	result, err := c.VerificationService.Verify(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
