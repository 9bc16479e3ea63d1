package handlers

import (
	"net/http"
)

// Me returns the caller's profile with the live credit balance and storage
// accounting.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.store().User(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"credit_balance": user.CreditBalance,
		"storage_used":   user.StorageUsed,
		"storage_quota":  user.StorageQuota,
		"created_at":     user.CreatedAt,
	})
}

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	st, err := a.store().Stats(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"completed":        st.Completed,
		"failed":           st.Failed,
		"cancelled":        st.Cancelled,
		"active":           st.Active,
		"seconds_rendered": st.SecondsRendered,
		"credits_spent":    st.CreditsSpent,
	})
}
