package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
)

// Status is the result code every handler replies with. Every handler
// is idempotent.
type Status string

const (
	StatusOK           Status = "OK"
	StatusInvalidArgs  Status = "INVALID_ARGS"
	StatusBadRequest   Status = "BAD_REQUEST"
)

// Response is the common JSON-RPC-over-REST envelope every handler
// returns.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// GrantController is the subset of a protocol controller's grant
// lifecycle the CC<->VC handlers drive. dmr.Control, p25.Control, and
// nxdn.Control each satisfy this narrowly so pkg/rpc never imports any
// of them directly.
type GrantController interface {
	PermitTalkgroup(talkgroupID uint32, slot int) bool
	ReleaseGrant(talkgroupID uint32) bool
	TouchGrant(talkgroupID uint32) bool
	ActiveTalkgroups() []uint32
	ClearActiveTalkgroups()
	RejectTraffic(dstID uint32) bool
}

// API exposes the CC<->VC and Control->VC message classes over
// JSON-RPC-style REST endpoints using a net/http JSON handler shape.
type API struct {
	log        *logger.Logger
	controller GrantController
	hub        *ActivityHub
}

// NewAPI constructs an API bound to a single protocol controller's
// grant lifecycle and an (optional) activity hub for notifications.
func NewAPI(log *logger.Logger, controller GrantController, hub *ActivityHub) *API {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &API{log: log.WithComponent("rpc"), controller: controller, hub: hub}
}

type talkgroupSlotRequest struct {
	TalkgroupID uint32 `json:"talkgroup_id"`
	Slot        int    `json:"slot"`
}

type talkgroupRequest struct {
	TalkgroupID uint32 `json:"talkgroup_id"`
}

type dstRequest struct {
	DstID uint32 `json:"dst_id"`
}

func writeJSON(w http.ResponseWriter, status Status, message string) {
	w.Header().Set("Content-Type", "application/json")
	switch status {
	case StatusOK:
		w.WriteHeader(http.StatusOK)
	case StatusInvalidArgs:
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(Response{Status: status, Message: message})
}

func decodeBody(r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return false
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// HandlePermitTalkgroup implements the CC<->VC "permit TG" message.
func (a *API) HandlePermitTalkgroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, StatusBadRequest, "expected POST")
		return
	}
	var req talkgroupSlotRequest
	if !decodeBody(r, &req) || req.TalkgroupID == 0 {
		writeJSON(w, StatusInvalidArgs, "talkgroup_id is required")
		return
	}
	if !a.controller.PermitTalkgroup(req.TalkgroupID, req.Slot) {
		writeJSON(w, StatusInvalidArgs, "talkgroup not permitted")
		return
	}
	a.publish("permit_tg", req.TalkgroupID)
	writeJSON(w, StatusOK, "")
}

// HandleReleaseGrant implements the CC<->VC "release grant" message.
// Idempotent: releasing an already-released talkgroup still replies OK.
func (a *API) HandleReleaseGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, StatusBadRequest, "expected POST")
		return
	}
	var req talkgroupRequest
	if !decodeBody(r, &req) || req.TalkgroupID == 0 {
		writeJSON(w, StatusInvalidArgs, "talkgroup_id is required")
		return
	}
	a.controller.ReleaseGrant(req.TalkgroupID)
	a.publish("release_grant", req.TalkgroupID)
	writeJSON(w, StatusOK, "")
}

// HandleTouchGrant implements the CC<->VC "touch grant" message.
func (a *API) HandleTouchGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, StatusBadRequest, "expected POST")
		return
	}
	var req talkgroupRequest
	if !decodeBody(r, &req) || req.TalkgroupID == 0 {
		writeJSON(w, StatusInvalidArgs, "talkgroup_id is required")
		return
	}
	a.controller.TouchGrant(req.TalkgroupID)
	writeJSON(w, StatusOK, "")
}

type activeTalkgroupsResponse struct {
	Response
	TalkgroupIDs []uint32 `json:"talkgroup_ids"`
}

// HandleActiveTalkgroups implements the CC<->VC "active TGs" list query.
func (a *API) HandleActiveTalkgroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, StatusBadRequest, "expected GET")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(activeTalkgroupsResponse{
		Response:     Response{Status: StatusOK},
		TalkgroupIDs: a.controller.ActiveTalkgroups(),
	})
}

// HandleClearActiveTalkgroups implements the CC<->VC "clear active TGs"
// message. Idempotent: clearing an already-empty list still replies OK.
func (a *API) HandleClearActiveTalkgroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, StatusBadRequest, "expected POST")
		return
	}
	a.controller.ClearActiveTalkgroups()
	a.publish("clear_active_tgs", nil)
	writeJSON(w, StatusOK, "")
}

// HandleRejectTraffic implements the Control->VC "reject traffic" (ICC)
// message: forces a RF-rejected state for a matching dst id.
func (a *API) HandleRejectTraffic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, StatusBadRequest, "expected POST")
		return
	}
	var req dstRequest
	if !decodeBody(r, &req) || req.DstID == 0 {
		writeJSON(w, StatusInvalidArgs, "dst_id is required")
		return
	}
	a.controller.RejectTraffic(req.DstID)
	a.publish("reject_traffic", req.DstID)
	writeJSON(w, StatusOK, "")
}

func (a *API) publish(eventType string, value interface{}) {
	if a.hub == nil {
		return
	}
	a.hub.Publish(eventType, map[string]interface{}{"value": value})
}

// Routes registers every handler on mux under the given prefix, e.g.
// "/icc".
func (a *API) Routes(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix+"/permit", a.HandlePermitTalkgroup)
	mux.HandleFunc(prefix+"/release", a.HandleReleaseGrant)
	mux.HandleFunc(prefix+"/touch", a.HandleTouchGrant)
	mux.HandleFunc(prefix+"/active", a.HandleActiveTalkgroups)
	mux.HandleFunc(prefix+"/active/clear", a.HandleClearActiveTalkgroups)
	mux.HandleFunc(prefix+"/reject", a.HandleRejectTraffic)
}
