package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ludoteko/internal/session"
)

// CookieName carries the anonymous user identifier.
const CookieName = "user_id"

// getOrCreateUser retrieves the anonymous user ID from the cookie or
// issues a fresh one. The cookie is the identity provider: progress keys
// off it, so it is long-lived and marked HttpOnly.
func (app *App) getOrCreateUser(c *gin.Context) string {
	userID, err := c.Cookie(CookieName)
	if err != nil || len(userID) < 10 {
		userID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(CookieName, userID, int(app.Config.CookieMaxAge.Seconds()), "/", "", app.Config.production(), true)
		app.Logger.Info().Str("user_id", userID).Msg("issued new anonymous identity")
	}
	return userID
}

// orchestratorFor resolves the session orchestrator for the request's
// user, creating and hydrating the session bundle on first contact.
func (app *App) orchestratorFor(c *gin.Context) *session.Orchestrator {
	return app.Sessions.Get(c.Request.Context(), app.getOrCreateUser(c))
}
