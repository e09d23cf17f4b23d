// Package bot turns chat messages into tracker actions and tracker results
// into chat replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/service"
)

const (
	CommandStart   = "/start"
	ButtonSleep    = "Уснуть"
	ButtonWake     = "Проснуться"
	ButtonSkipNote = "Сегодня без заметок"
)

var RatingButtons = []string{"1", "2", "3", "4", "5"}

// Message is an inbound chat message.
type Message struct {
	UserID   int64  `json:"user_id" validate:"required"`
	UserName string `json:"user_name"`
	Text     string `json:"text"`
}

// Reply is what the bot sends back: text plus the buttons to offer.
type Reply struct {
	Text     string   `json:"text"`
	Keyboard []string `json:"keyboard"`
}

// ParseAction maps message text to an action. Anything that is not a
// command or button is a note.
func ParseAction(text string) service.Action {
	text = strings.TrimSpace(text)
	switch text {
	case CommandStart:
		return service.Register{}
	case ButtonSleep:
		return service.StartSleep{}
	case ButtonWake:
		return service.Wake{}
	case ButtonSkipNote:
		return service.SkipNote{}
	}
	for _, b := range RatingButtons {
		if text == b {
			n, _ := strconv.Atoi(text)
			return service.Rate{Value: n}
		}
	}
	return service.WriteNote{Text: text}
}

type Bot struct {
	tracker *service.Tracker
	logger  internal.Logger
}

func New(tracker *service.Tracker, logger internal.Logger) *Bot {
	return &Bot{tracker: tracker, logger: logger}
}

// Handle processes one message and always produces a reply.
func (b *Bot) Handle(ctx context.Context, msg Message) Reply {
	action := ParseAction(msg.Text)
	if r, ok := action.(service.Register); ok {
		r.UserName = msg.UserName
		action = r
	}
	return b.Do(ctx, internal.User{ID: msg.UserID, Name: msg.UserName}, action)
}

// Do applies an already parsed action and renders the result.
func (b *Bot) Do(ctx context.Context, user internal.User, action service.Action) Reply {
	out, err := b.tracker.Apply(ctx, user, action)
	if err != nil {
		state, _, statusErr := b.tracker.Status(ctx, user.ID)
		if statusErr != nil {
			b.logger.Warnf("user %d: status after failed %s: %v", user.ID, action.Name(), statusErr)
		}
		return RenderError(user.Name, state, err)
	}
	return RenderOutcome(user.Name, out)
}

// KeyboardFor returns the buttons that make sense in state.
func KeyboardFor(state service.State) []string {
	switch state {
	case service.StateAsleep:
		return []string{ButtonWake}
	case service.StateAwaitingRating:
		return RatingButtons
	default:
		return []string{ButtonSleep}
	}
}

func RenderOutcome(name string, out *service.Outcome) Reply {
	switch out.Event {
	case service.EventRegistered:
		return Reply{
			Text:     fmt.Sprintf("Привет %s, я - бот. И я буду отслеживать качество твоего сна.\nДля отхода ко сну нажми кнопку %q", name, ButtonSleep),
			Keyboard: KeyboardFor(out.State),
		}
	case service.EventSleepStarted, service.EventSleepRestarted:
		return Reply{
			Text:     fmt.Sprintf("%s, идешь спать?\nНе забудь сообщить, когда проснешься", name),
			Keyboard: []string{ButtonWake},
		}
	case service.EventWokeUp:
		return Reply{
			Text:     fmt.Sprintf("%s, доброе утро, ты проспал %s.\nОцени качество своего сна:", name, service.FormatElapsed(out.Elapsed)),
			Keyboard: RatingButtons,
		}
	case service.EventRated:
		return Reply{
			Text:     fmt.Sprintf("Напиши заметку к своему сну в пустое окошко или проигнорируй нажатием кнопки %q", ButtonSkipNote),
			Keyboard: []string{ButtonSkipNote},
		}
	case service.EventNoteAdded:
		return Reply{
			Text:     "Комментарий был добавлен к твоему последнему сну.\nХочешь что-то добавить?",
			Keyboard: []string{ButtonSkipNote},
		}
	case service.EventNoteSkipped:
		return Reply{
			Text:     fmt.Sprintf("%s, не забудь предупредить, когда пойдешь ложиться спать", name),
			Keyboard: []string{ButtonSleep},
		}
	default:
		return Reply{Text: string(out.Event), Keyboard: KeyboardFor(out.State)}
	}
}

// RenderError explains a rejected or failed action. state is the user's
// state after the attempt and only picks the buttons.
func RenderError(name string, state service.State, err error) Reply {
	switch {
	case errors.Is(err, internal.ErrNeverSlept):
		return Reply{Text: fmt.Sprintf("%s, ты не ложился спать", name), Keyboard: KeyboardFor(state)}
	case errors.Is(err, internal.ErrNotCurrentlyAsleep):
		return Reply{
			Text:     fmt.Sprintf("Ты еще не ложился спать\nКогда пойдешь спать, не забудь предупредить нажатием кнопки %q", ButtonSleep),
			Keyboard: []string{ButtonSleep},
		}
	case errors.Is(err, internal.ErrSessionNotFinished):
		return Reply{
			Text:     fmt.Sprintf("Твой сон еще не окончен.\nНажми кнопку %q", ButtonWake),
			Keyboard: []string{ButtonWake},
		}
	case errors.Is(err, internal.ErrNoteNotExpected):
		return Reply{Text: "Заметку можно оставить только после оценки сна", Keyboard: KeyboardFor(state)}
	case errors.Is(err, internal.ErrInvalidRating):
		return Reply{Text: "Оцени сон числом от 1 до 5", Keyboard: RatingButtons}
	case errors.Is(err, internal.ErrNoteTooLong):
		return Reply{Text: fmt.Sprintf("Заметка слишком длинная, уложись в %d символов", service.MaxNoteLength), Keyboard: KeyboardFor(state)}
	case errors.Is(err, internal.ErrEmptyNote):
		return Reply{Text: "Заметка не может быть пустой", Keyboard: KeyboardFor(state)}
	default:
		return Reply{Text: "Что-то пошло не так, попробуй еще раз чуть позже", Keyboard: KeyboardFor(state)}
	}
}
