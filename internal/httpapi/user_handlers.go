package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"padisave.org/internal/circle"
	"padisave.org/internal/user"
)

type circleSummary struct {
	Circle          *circle.Circle `json:"circle"`
	Progress        float64        `json:"progress"`
	MyPosition      int            `json:"my_position"`
	RecipientUserID string         `json:"recipient_user_id,omitempty"`
}

type userDataResponse struct {
	User    *user.User      `json:"user"`
	Circles []circleSummary `json:"circles"`
}

// handleGetUserData returns the account plus a summary of every circle it
// belongs to. The userId query parameter defaults to the caller.
func (a *API) handleGetUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = caller
	}

	u, err := a.users.Get(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	circles, err := a.circles.ListCirclesForUser(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	summaries := make([]circleSummary, 0, len(circles))
	for _, c := range circles {
		s := circleSummary{Circle: c, MyPosition: -1}
		if p, err := a.circles.Progress(r.Context(), c.ID); err == nil {
			s.Progress = p
		}
		if roster, err := a.circles.Roster(r.Context(), c.ID); err == nil {
			for _, m := range roster {
				if m.UserID == userID {
					s.MyPosition = m.Position
					break
				}
			}
		}
		rcpt, err := a.circles.CurrentRecipient(r.Context(), c.ID)
		switch {
		case err == nil:
			s.RecipientUserID = rcpt.UserID
		case errors.Is(err, circle.ErrCircleNotActive):
			// pending or completed; no recipient to show
		default:
			handleDomainError(w, r, err)
			return
		}
		summaries = append(summaries, s)
	}

	writeJSON(w, http.StatusOK, userDataResponse{User: u, Circles: summaries})
}
