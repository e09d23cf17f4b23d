package service

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MaxNoteLength bounds a note in characters.
const MaxNoteLength = 4096

// Action is one inbound user action. The set is closed: only the types in
// this file implement it.
type Action interface {
	Name() string
	action()
}

// Register records the user on first contact.
type Register struct {
	UserName string
}

type StartSleep struct{}

type Wake struct{}

type Rate struct {
	Value int `validate:"gte=1,lte=5"`
}

type WriteNote struct {
	Text string `validate:"required,max=4096"`
}

type SkipNote struct{}

func (Register) Name() string   { return "register" }
func (StartSleep) Name() string { return "start_sleep" }
func (Wake) Name() string       { return "wake" }
func (Rate) Name() string       { return "rate" }
func (WriteNote) Name() string  { return "note" }
func (SkipNote) Name() string   { return "skip_note" }

func (Register) action()   {}
func (StartSleep) action() {}
func (Wake) action()       {}
func (Rate) action()       {}
func (WriteNote) action()  {}
func (SkipNote) action()   {}
