package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fluxboom/internal/domain"
	"fluxboom/internal/secrets"
)

type keysRequest struct {
	ReplicateAPIKey string `json:"replicate_api_key,omitempty"`
	ImgbbAPIKey     string `json:"imgbb_api_key,omitempty"`
}

// keysStatus reports whether each key is configured. Key material is never
// echoed back.
type keysStatus struct {
	ReplicateAPIKeySet bool `json:"replicate_api_key_set"`
	ImgbbAPIKeySet     bool `json:"imgbb_api_key_set"`
}

func (a *App) PutKeys(w http.ResponseWriter, r *http.Request) {
	var body keysRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, r, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	replicateKey := strings.TrimSpace(body.ReplicateAPIKey)
	imgbbKey := strings.TrimSpace(body.ImgbbAPIKey)
	if replicateKey == "" && imgbbKey == "" {
		a.fail(w, r, fmt.Errorf("%w: no keys provided", domain.ErrValidation))
		return
	}
	if replicateKey != "" {
		if err := a.Secrets.Set(r.Context(), secrets.KeyReplicate, replicateKey); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if imgbbKey != "" {
		if err := a.Secrets.Set(r.Context(), secrets.KeyImgbb, imgbbKey); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	a.GetKeys(w, r)
}

func (a *App) GetKeys(w http.ResponseWriter, r *http.Request) {
	replicateKey, err := a.Secrets.Get(r.Context(), secrets.KeyReplicate)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	imgbbKey, err := a.Secrets.Get(r.Context(), secrets.KeyImgbb)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, keysStatus{
		ReplicateAPIKeySet: replicateKey != "",
		ImgbbAPIKeySet:     imgbbKey != "",
	})
}
