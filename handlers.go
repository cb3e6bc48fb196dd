package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ludoteko/internal/game"
	"ludoteko/internal/store"
)

// bindGame parses and validates the game identifier of a request body.
func bindGame(c *gin.Context, raw string) (game.ID, bool) {
	id, err := game.ParseID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

type guessRequest struct {
	Game       string `json:"game" binding:"required"`
	QuestionID int    `json:"questionId"`
	Letter     string `json:"letter" binding:"required"`
	// Revealed holds the word indexes the letter uncovered; empty means
	// the guess was wrong.
	Revealed []int `json:"revealed"`
}

// guessLetterHandler records a hangman letter guess.
func (app *App) guessLetterHandler(c *gin.Context) {
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.GuessLetter(c.Request.Context(), g, req.QuestionID, strings.ToUpper(strings.TrimSpace(req.Letter)), req.Revealed)
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

type matchRequest struct {
	Game       string `json:"game" binding:"required"`
	QuestionID int    `json:"questionId"`
	Pair       string `json:"pair" binding:"required"`
	Slot       int    `json:"slot"`
}

// matchCardsHandler records a matched pair in the memory game.
func (app *App) matchCardsHandler(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.MatchCards(c.Request.Context(), g, req.QuestionID, req.Pair, req.Slot)
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

type pieceRequest struct {
	Game       string `json:"game" binding:"required"`
	QuestionID int    `json:"questionId"`
	Piece      string `json:"piece" binding:"required"`
	Slot       int    `json:"slot"`
}

// pieceFittedHandler records a fitted puzzle piece. The physics check
// happens client-side; only the boolean outcome reaches the server.
func (app *App) pieceFittedHandler(c *gin.Context) {
	var req pieceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.PieceFitted(c.Request.Context(), g, req.QuestionID, req.Piece, req.Slot)
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

type mistakeRequest struct {
	Game  string `json:"game" binding:"required"`
	Entry string `json:"entry" binding:"required"`
	Merge bool   `json:"merge"`
}

// mistakeHandler records a mistake without further round evaluation.
func (app *App) mistakeHandler(c *gin.Context) {
	var req mistakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.RecordMistake(c.Request.Context(), g, req.Entry, req.Merge)
	c.JSON(http.StatusOK, gin.H{"errors": orch.GameErrors(g)})
}

type failRequest struct {
	Game       string `json:"game" binding:"required"`
	QuestionID int    `json:"questionId"`
}

// failRoundHandler handles an explicit game-specific failure intent.
func (app *App) failRoundHandler(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.FailRound(c.Request.Context(), g, req.QuestionID)
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

type progressRequest struct {
	Game       string       `json:"game" binding:"required"`
	QuestionID int          `json:"questionId"`
	Completed  []store.Unit `json:"completed"`
}

// progressHandler is the raw completion-recording endpoint. An empty
// completed list is the wire-level reset sentinel and maps to the
// explicit reset operation.
func (app *App) progressHandler(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	if len(req.Completed) == 0 {
		orch.ResetRound(c.Request.Context(), g, req.QuestionID)
	} else {
		orch.RecordCompletion(c.Request.Context(), g, req.QuestionID, req.Completed)
	}
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

// resetRoundHandler clears a question's progress and the game's mistakes
// without advancing the round.
func (app *App) resetRoundHandler(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	orch.ResetRound(c.Request.Context(), g, req.QuestionID)
	c.JSON(http.StatusOK, app.snapshot(c, g, req.QuestionID))
}

type roundConfigRequest struct {
	Game           string `json:"game" binding:"required"`
	RoundLength    int    `json:"roundLength"`
	NumberOfRounds int    `json:"numberOfRounds"`
}

// roundConfigHandler lets the active game's UI set the expected answer
// size and content size before scoring is evaluated.
func (app *App) roundConfigHandler(c *gin.Context) {
	var req roundConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, ok := bindGame(c, req.Game)
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	if req.RoundLength > 0 {
		orch.SetRoundLength(g, req.RoundLength)
	}
	if req.NumberOfRounds > 0 {
		orch.SetNumberOfRounds(g, req.NumberOfRounds)
	}
	c.JSON(http.StatusOK, gin.H{"round": orch.Round(g)})
}

type resultsRequest struct {
	Username string `json:"username" binding:"required"`
	Message  string `json:"message"`
}

// resultsHandler accepts the send-results form: the display name is
// persisted to the user's record and the submission is relayed.
func (app *App) resultsHandler(c *gin.Context) {
	var req resultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orch := app.orchestratorFor(c)
	if err := orch.SubmitResults(c.Request.Context(), strings.TrimSpace(req.Username), req.Message); err != nil {
		app.Logger.Warn().Err(err).Msg("results relay failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// stateHandler returns everything the frontend needs to render one game.
func (app *App) stateHandler(c *gin.Context) {
	g, ok := bindGame(c, c.Param("game"))
	if !ok {
		return
	}

	orch := app.orchestratorFor(c)
	c.JSON(http.StatusOK, gin.H{
		"game":         g,
		"score":        orch.Score(),
		"scoreMessage": orch.ScoreMessage(),
		"round":        orch.Round(g),
		"progress":     orch.GameProgress(g),
		"errors":       orch.GameErrors(g),
	})
}

// snapshot is the common response body after a mutating intent.
func (app *App) snapshot(c *gin.Context, g game.ID, questionID int) gin.H {
	orch := app.orchestratorFor(c)
	return gin.H{
		"game":         g,
		"score":        orch.Score(),
		"scoreMessage": orch.ScoreMessage(),
		"round":        orch.Round(g),
		"question":     orch.Question(g, questionID),
		"errors":       orch.GameErrors(g),
	}
}

// signalsHandler upgrades the connection and streams transient UI signals.
func (app *App) signalsHandler(c *gin.Context) {
	conn, err := app.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	app.Hub.Serve(conn)
}

// healthzHandler returns a JSON health check with server stats.
func (app *App) healthzHandler(c *gin.Context) {
	remoteStatus := "disabled"
	if app.Record != nil {
		remoteStatus = "ok"
		if err := app.Record.Ping(c.Request.Context()); err != nil {
			remoteStatus = "unreachable"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"env":       app.Config.Env,
		"sessions":  app.Sessions.Len(),
		"remote":    remoteStatus,
		"uptime":    formatUptime(time.Since(app.StartTime)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
