package app

import (
	"net/http"

	"github.com/okwama/moonsunclient-sub001/core"
)

// serveWS upgrades an authenticated request to a realtime session. The user
// identity comes from the auth middleware, never from the client.
func (app *App) serveWS(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	return app.sessionManager.Connect(session.Username, session.Name, w, r)
}

// checkOrigin builds the websocket origin policy from the configured allow
// list. "*" allows any origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send an origin.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
