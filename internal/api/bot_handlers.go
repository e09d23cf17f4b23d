package api

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/yourname/sleepbot/internal/bot"
)

var validate = validator.New()

// PostUpdate receives one chat message and answers with the bot's reply.
// Rejected actions are still a 200: the reply explains them to the user.
func PostUpdate(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg bot.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := validate.Struct(&msg); err != nil {
			HandleError(c, app.Logger(), err, 400, "Validation failed")
			return
		}
		app.Logger().Debugf("update from user %d: %q", msg.UserID, msg.Text)

		reply := app.Bot().Handle(c.Request.Context(), msg)
		HandleSuccess(c, app.Logger(), reply, nil)
	}
}
