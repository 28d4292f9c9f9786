// Package httpin exposes platform broadcasts and host launch signals as HTTP
// endpoints mounted on a chi router.
package httpin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pushbridge/internal/platform"
	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

const maxBody = 1 << 20

// Publisher receives decoded platform events.
type Publisher interface {
	Publish(ctx context.Context, ev push.Event) error
}

// LaunchHost receives launch signals.
type LaunchHost interface {
	SetLaunch(sig push.LaunchSignal)
	OnNewLaunch(sig push.LaunchSignal) bool
}

type Handlers struct {
	pub  Publisher
	host LaunchHost
	log  logx.Logger
}

func New(pub Publisher, host LaunchHost, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{pub: pub, host: host, log: log.With(logx.String("comp", "httpin"))}
}

// Mount registers the ingress routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/v1/platform/broadcast", h.broadcast)
	r.Post("/v1/host/launch", h.launch)
}

func (h *Handlers) broadcast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := platform.ParseBroadcast(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.pub.Publish(r.Context(), platform.Decode(b)); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		h.log.Warn("broadcast not accepted", logx.String("action", b.Action), logx.Err(err))
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// LaunchRequest is the body of POST /v1/host/launch.
type LaunchRequest struct {
	ID          string         `json:"id,omitempty"`
	Action      string         `json:"action"`
	ClickAction string         `json:"click_action,omitempty"`
	Extras      map[string]any `json:"extras"`
	Fresh       bool           `json:"fresh"`
}

type launchResponse struct {
	ID       string `json:"id"`
	Consumed bool   `json:"consumed"`
}

func (h *Handlers) launch(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.UseNumber()
	var req LaunchRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sig := push.LaunchSignal{
		ID:          req.ID,
		Action:      req.Action,
		ClickAction: req.ClickAction,
		Extras:      req.Extras,
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}

	consumed := false
	if req.Fresh {
		h.host.SetLaunch(sig)
	} else {
		consumed = h.host.OnNewLaunch(sig)
	}
	writeJSON(w, http.StatusOK, launchResponse{ID: sig.ID, Consumed: consumed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
