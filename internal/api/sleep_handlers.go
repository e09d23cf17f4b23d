package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/service"
)

type RegisterRequest struct {
	Name string `json:"name"`
}

type RatingRequest struct {
	Rating int `json:"rating"`
}

type NoteRequest struct {
	Text string `json:"text"`
}

func userFromPath(c *gin.Context) (internal.User, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return internal.User{}, fmt.Errorf("%w: user id must be a positive integer", internal.ErrInvalidInput)
	}
	return internal.User{ID: id, Name: c.Query("name")}, nil
}

// applyAction is the shared body of every action endpoint.
func applyAction(c *gin.Context, app App, action service.Action) {
	user, err := userFromPath(c)
	if err != nil {
		HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid user")
		return
	}

	out, err := app.Tracker().Apply(c.Request.Context(), user, action)
	if err != nil {
		HandleError(c, app.Logger(), err, StatusFor(err), "Action "+action.Name()+" rejected")
		return
	}

	var meta map[string]any
	if out.Event == service.EventWokeUp {
		h, m := service.SplitElapsed(out.Elapsed)
		meta = map[string]any{
			"elapsed":         service.FormatElapsed(out.Elapsed),
			"elapsed_hours":   h,
			"elapsed_minutes": m,
		}
	}
	HandleSuccess(c, app.Logger(), out, meta)
}

func PostRegister(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body RegisterRequest
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		applyAction(c, app, service.Register{UserName: body.Name})
	}
}

func PostSleep(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		applyAction(c, app, service.StartSleep{})
	}
}

func PostWake(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		applyAction(c, app, service.Wake{})
	}
}

func PostRating(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body RatingRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		applyAction(c, app, service.Rate{Value: body.Rating})
	}
}

func PostNote(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body NoteRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		applyAction(c, app, service.WriteNote{Text: body.Text})
	}
}

func PostSkipNote(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		applyAction(c, app, service.SkipNote{})
	}
}

func GetSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := userFromPath(c)
		if err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid user")
			return
		}
		state, sess, err := app.Tracker().Status(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch session")
			return
		}
		notes, err := app.Tracker().Notes(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch notes")
			return
		}
		HandleSuccess(c, app.Logger(), sess, map[string]any{"state": state, "notes": notes})
	}
}

func GetSleepStats(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := userFromPath(c)
		if err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid user")
			return
		}
		window := app.StatsWindow()
		if days := c.Query("days"); days != "" {
			n, err := strconv.Atoi(days)
			if err != nil || n < 1 {
				HandleError(c, app.Logger(), fmt.Errorf("%w: days must be a positive integer", internal.ErrInvalidInput), 400, "Invalid window")
				return
			}
			window = time.Duration(n) * 24 * time.Hour
		}

		stats, err := app.Tracker().Stats(c.Request.Context(), user.ID, window)
		if err != nil {
			HandleError(c, app.Logger(), err, StatusFor(err), "Failed to fetch logs for stats")
			return
		}
		meta := map[string]any{
			"average_quality":  stats.AverageQuality,
			"trend":            stats.Trend,
			"average_duration": service.FormatElapsed(stats.AverageDuration),
			"window_days":      int(window.Hours() / 24),
		}
		HandleSuccess(c, app.Logger(), stats, meta)
	}
}
