package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"padisave.org/internal/audit"
	"padisave.org/internal/circle"
	"padisave.org/internal/obs"
	"padisave.org/internal/rotation"
)

type createCircleRequest struct {
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Frequency string `json:"frequency"`
}

type joinCircleRequest struct {
	JoinCode string `json:"join_code"`
}

type leaveCircleRequest struct {
	CircleID string `json:"circle_id"`
}

type recordPaymentRequest struct {
	CycleID      string `json:"cycle_id"`
	MembershipID string `json:"membership_id"`
	Amount       int64  `json:"amount"`
}

type advanceCycleRequest struct {
	CircleID string `json:"circle_id"`
}

type markOverdueRequest struct {
	CycleID string `json:"cycle_id"`
}

type writeOffRequest struct {
	CycleID      string `json:"cycle_id"`
	MembershipID string `json:"membership_id"`
}

type circleStatusResponse struct {
	Circle        *circle.Circle         `json:"circle"`
	Members       []*circle.Membership   `json:"members"`
	CurrentCycle  *circle.Cycle          `json:"current_cycle,omitempty"`
	Contributions []*circle.Contribution `json:"contributions,omitempty"`
	Recipient     *circle.Membership     `json:"recipient,omitempty"`
	Progress      float64                `json:"progress"`
}

func (a *API) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createCircleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	freq, err := rotation.ParseFrequency(req.Frequency)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.circles.CreateCircle(r.Context(), caller, req.Name, req.Amount, freq)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.IncCircleCreated()
	_ = audit.LogEvent(r.Context(), "circle.create", map[string]any{
		"circle_id": c.ID,
		"name":      c.Name,
		"amount":    strconv.FormatInt(c.Amount, 10),
		"frequency": string(c.Frequency),
	})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleJoinCircle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req joinCircleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	m, err := a.circles.JoinCircle(r.Context(), req.JoinCode, caller)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.IncMemberJoined()
	_ = audit.LogEvent(r.Context(), "circle.join", map[string]any{
		"circle_id":     m.CircleID,
		"membership_id": m.ID,
		"position":      m.Position,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleLeaveCircle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req leaveCircleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.circles.LeaveCircle(r.Context(), strings.TrimSpace(req.CircleID), caller); err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "circle.leave", map[string]any{
		"circle_id": req.CircleID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "left"})
}

// handleCircleStatus returns the full state of one circle: roster, open
// cycle with its contributions, current recipient and lifetime progress.
func (a *API) handleCircleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := callerID(w, r); !ok {
		return
	}
	circleID := strings.TrimSpace(r.URL.Query().Get("circleId"))
	if circleID == "" {
		writeError(w, r, http.StatusBadRequest, "circleId query parameter is required")
		return
	}

	c, err := a.circles.GetCircle(r.Context(), circleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	members, err := a.circles.Roster(r.Context(), circleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	progress, err := a.circles.Progress(r.Context(), circleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp := circleStatusResponse{
		Circle:   c,
		Members:  members,
		Progress: progress,
	}
	cur, err := a.circles.CurrentCycle(r.Context(), circleID)
	switch {
	case err == nil:
		resp.CurrentCycle = cur
		contribs, err := a.circles.Contributions(r.Context(), cur.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		resp.Contributions = contribs
	case errors.Is(err, circle.ErrNotFound):
		// pending circle; no cycle yet
	default:
		handleDomainError(w, r, err)
		return
	}
	if rcpt, err := a.circles.CurrentRecipient(r.Context(), circleID); err == nil {
		resp.Recipient = rcpt
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Members pay their own contribution; the admin may also record cash
	// collected offline for anyone in the circle.
	if ok := a.authorizeMembershipAction(w, r, caller, req.CycleID, req.MembershipID); !ok {
		return
	}

	p, err := a.circles.RecordPayment(r.Context(), req.CycleID, req.MembershipID, req.Amount)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.IncPaymentRecorded(string(p.Outcome))
	_ = audit.LogEvent(r.Context(), "contribution.pay", map[string]any{
		"cycle_id":      req.CycleID,
		"membership_id": req.MembershipID,
		"amount":        strconv.FormatInt(req.Amount, 10),
		"outcome":       string(p.Outcome),
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleAdvanceCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req advanceCycleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if ok := a.requireCircleAdmin(w, r, caller, strings.TrimSpace(req.CircleID)); !ok {
		return
	}

	res, err := a.circles.AdvanceCycle(r.Context(), strings.TrimSpace(req.CircleID))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.IncCycleAdvanced()
	fields := map[string]any{
		"circle_id":    req.CircleID,
		"recipient_id": res.Recipient.ID,
		"payout":       strconv.FormatInt(res.Payout, 10),
		"completed":    res.Completed,
	}
	if res.NextCycle != nil {
		fields["next_cycle_id"] = res.NextCycle.ID
	}
	_ = audit.LogEvent(r.Context(), "cycle.advance", fields)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleMarkOverdue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req markOverdueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cy, err := a.circles.Cycle(r.Context(), strings.TrimSpace(req.CycleID))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if ok := a.requireCircleAdmin(w, r, caller, cy.CircleID); !ok {
		return
	}

	n, err := a.circles.MarkOverdue(r.Context(), cy.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	if n > 0 {
		_ = audit.LogEvent(r.Context(), "cycle.mark_overdue", map[string]any{
			"cycle_id": cy.ID,
			"marked":   n,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

func (a *API) handleWriteOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req writeOffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cy, err := a.circles.Cycle(r.Context(), strings.TrimSpace(req.CycleID))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if ok := a.requireCircleAdmin(w, r, caller, cy.CircleID); !ok {
		return
	}

	contrib, err := a.circles.WriteOff(r.Context(), cy.ID, strings.TrimSpace(req.MembershipID))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.IncPaymentRecorded("missed")
	_ = audit.LogEvent(r.Context(), "contribution.write_off", map[string]any{
		"cycle_id":      cy.ID,
		"membership_id": req.MembershipID,
	})
	writeJSON(w, http.StatusOK, contrib)
}

// requireCircleAdmin writes a 403 unless the caller administers the circle.
func (a *API) requireCircleAdmin(w http.ResponseWriter, r *http.Request, caller, circleID string) bool {
	c, err := a.circles.GetCircle(r.Context(), circleID)
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	if c.AdminUserID != caller {
		writeError(w, r, http.StatusForbidden, "circle admin required")
		return false
	}
	return true
}

// authorizeMembershipAction allows the membership's own user or the circle
// admin to act on a contribution.
func (a *API) authorizeMembershipAction(w http.ResponseWriter, r *http.Request, caller, cycleID, membershipID string) bool {
	cy, err := a.circles.Cycle(r.Context(), strings.TrimSpace(cycleID))
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	c, err := a.circles.GetCircle(r.Context(), cy.CircleID)
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	if c.AdminUserID == caller {
		return true
	}
	roster, err := a.circles.Roster(r.Context(), cy.CircleID)
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	for _, m := range roster {
		if m.ID == strings.TrimSpace(membershipID) {
			if m.UserID == caller {
				return true
			}
			break
		}
	}
	writeError(w, r, http.StatusForbidden, "not allowed to act on this contribution")
	return false
}
