package http

import "net/http"

// DashboardHandler is the landing page behind the gate. Campaign tooling
// hangs off this page in the full console; here it only proves the session.
type DashboardHandler struct {
	Router *Router
}

func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	h.Router.render(w, r, "dashboard", "Dashboard", nil, "")
}
