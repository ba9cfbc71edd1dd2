package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/flow"
	"github.com/sh1vu7/secreteshare/internal/share"
)

const (
	userHeader   = "X-User-ID"
	maxBodyBytes = 1 << 20
)

func actorID(r *http.Request) (int64, error) {
	v := r.Header.Get(userHeader)
	if v == "" {
		return 0, errors.New("missing " + userHeader + " header")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + userHeader + " header")
	}
	return id, nil
}

// decodeBody reads a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// withActor resolves the acting user or answers 400.
func withActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := actorID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	res, err := s.flows.Start(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type eventRequest struct {
	Action  flow.Action     `json:"action"`
	State   flow.State      `json:"state,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed event: "+err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "action is required")
		return
	}
	res, err := s.flows.Submit(r.Context(), user, flow.Event{
		Action:  req.Action,
		FlowID:  mux.Vars(r)["flowID"],
		State:   req.State,
		Payload: req.Payload,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type confirmResponse struct {
	Share *share.Share `json:"share"`
	Link  string       `json:"link"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	sh, err := s.flows.Confirm(r.Context(), user, mux.Vars(r)["flowID"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, confirmResponse{Share: sh, Link: s.shares.Link(sh.AccessToken)})
}

func (s *Server) handleCancelFlow(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	if err := s.flows.Cancel(r.Context(), user, mux.Vars(r)["flowID"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type viewRequest struct {
	// Token is the raw access token or the viewsecret_ deep link form.
	Token      string `json:"token"`
	ViewerName string `json:"viewer_name,omitempty"`
}

type viewResponse struct {
	Result    share.ViewResult `json:"result"`
	Delivered bool             `json:"delivered"`
	ShareID   string           `json:"share_id"`
	Status    share.Status     `json:"status"`
	ViewCount int              `json:"view_count"`
	MaxViews  share.MaxViews   `json:"max_views"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	viewer, ok := withActor(w, r)
	if !ok {
		return
	}
	var req viewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed view request: "+err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "token is required")
		return
	}

	out, err := s.shares.ResolveView(r.Context(), req.Token, share.Viewer{ID: viewer, Display: req.ViewerName})
	switch {
	case err != nil && out.Granted():
		s.log.Warn("view counted but not delivered", "share_id", out.Share.ID, "viewer_id", viewer, "error", err)
		writeError(w, http.StatusBadGateway, codeUndelivered, share.Reason(out))
		return
	case err != nil:
		s.fail(w, r, err)
		return
	case out.Result == share.ViewConflict:
		writeError(w, http.StatusGone, codeGone, share.Reason(out))
		return
	case out.Result == share.ViewNotPermitted:
		writeError(w, http.StatusForbidden, codeNotPermitted, share.Reason(out))
		return
	}

	writeJSON(w, http.StatusOK, viewResponse{
		Result:    out.Result,
		Delivered: out.Delivered,
		ShareID:   out.Share.ID,
		Status:    out.Share.Status,
		ViewCount: out.Share.ViewCount,
		MaxViews:  out.Share.MaxViews,
	})
}

func (s *Server) handleShareDetail(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	sh, err := s.shares.Detail(r.Context(), mux.Vars(r)["shareID"], user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type revokeResponse struct {
	ShareID string `json:"share_id"`
	Revoked bool   `json:"revoked"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	user, ok := withActor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["shareID"]
	revoked, err := s.shares.Revoke(r.Context(), id, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{ShareID: id, Revoked: revoked})
}

// pathUser checks that the path user is the acting user.
func pathUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actor, ok := withActor(w, r)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid user id")
		return 0, false
	}
	if id != actor {
		writeError(w, http.StatusForbidden, codeNotPermitted, "you can only see your own secrets")
		return 0, false
	}
	return id, true
}

type shareSummary struct {
	ID            string              `json:"id"`
	Status        share.Status        `json:"status"`
	RecipientKind share.RecipientKind `json:"recipient_kind"`
	Recipient     string              `json:"recipient,omitempty"`
	ContentKind   share.ContentKind   `json:"content_kind"`
	ViewCount     int                 `json:"view_count"`
	MaxViews      share.MaxViews      `json:"max_views"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
}

type listResponse struct {
	Shares   []shareSummary `json:"shares"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int            `json:"total"`
	Pages    int            `json:"pages"`
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	all := r.URL.Query().Get("all") == "true"

	p, err := s.shares.ListBySender(r.Context(), user, page, all)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := listResponse{Shares: []shareSummary{}, Page: p.Page, PageSize: p.PageSize, Total: p.Total, Pages: p.Pages}
	for _, sh := range p.Shares {
		out.Shares = append(out.Shares, shareSummary{
			ID:            sh.ID,
			Status:        sh.Status,
			RecipientKind: sh.RecipientKind,
			Recipient:     sh.RecipientDisplay,
			ContentKind:   sh.Content.Kind,
			ViewCount:     sh.ViewCount,
			MaxViews:      sh.MaxViews,
			CreatedAt:     sh.CreatedAt,
			ExpiresAt:     sh.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	st, err := s.settings.Settings(r.Context(), user)
	if err != nil {
		s.fail(w, r, share.Persistence("settings", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type settingsPatch struct {
	NotifyOnView   *bool `json:"notify_on_view,omitempty"`
	ProtectContent *bool `json:"protect_content,omitempty"`
	ShowForwardTag *bool `json:"show_forward_tag,omitempty"`
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	var patch settingsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed settings: "+err.Error())
		return
	}
	st, err := s.settings.UpdateSettings(r.Context(), user, func(st *account.Settings) error {
		if patch.NotifyOnView != nil {
			st.NotifyOnView = *patch.NotifyOnView
		}
		if patch.ProtectContent != nil {
			st.ProtectContent = *patch.ProtectContent
		}
		if patch.ShowForwardTag != nil {
			st.ShowForwardTag = *patch.ShowForwardTag
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, share.Persistence("settings", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
