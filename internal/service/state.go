package service

import (
	"errors"
	"fmt"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

// ErrInvalidTransition is returned when a command is not legal in the current state
var ErrInvalidTransition = errors.New("invalid transition")

// State is the recorder state
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Verb is a recorder command
type Verb string

const (
	VerbRecord Verb = "record"
	VerbStop   Verb = "stop"
	VerbPlay   Verb = "play"
	VerbPause  Verb = "pause"
	VerbSave   Verb = "save"
	// VerbFinish is issued by the playback monitor at the end of the buffer
	VerbFinish Verb = "finish"
)

type transition struct {
	to  State
	err error
}

// transitions lists every legal move. A missing entry is an ErrInvalidTransition;
// an entry with err set is a rejection with a more specific error.
var transitions = map[Verb]map[State]transition{
	VerbRecord: {
		StateIdle:      {to: StateRecording},
		StateStopped:   {to: StateRecording},
		StateRecording: {err: audio.ErrRecordingInSession},
	},
	VerbStop: {
		StateStopped:   {to: StateStopped},
		StateRecording: {to: StateStopped},
		StatePlaying:   {to: StateStopped},
		StatePaused:    {to: StateStopped},
	},
	VerbPlay: {
		StateIdle:    {to: StatePlaying},
		StateStopped: {to: StatePlaying},
		StatePaused:  {to: StatePlaying},
		StatePlaying: {err: audio.ErrPlayRecordingInSession},
	},
	VerbPause: {
		StatePlaying: {to: StatePaused},
	},
	VerbSave: {
		StateIdle:      {to: StateIdle},
		StateStopped:   {to: StateIdle},
		StatePlaying:   {to: StateIdle},
		StatePaused:    {to: StateIdle},
		StateRecording: {err: audio.ErrRecordingInSession},
	},
	VerbFinish: {
		StatePlaying: {to: StateStopped},
	},
}

// Next returns the state verb leads to from state, or the reason it is rejected
func Next(state State, verb Verb) (State, error) {
	t, ok := transitions[verb][state]
	if !ok {
		return state, fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, verb, state)
	}
	if t.err != nil {
		return state, t.err
	}
	return t.to, nil
}

// Verbs returns the commands accepted in state
func Verbs(state State) []Verb {
	var out []Verb
	for _, v := range []Verb{VerbRecord, VerbStop, VerbPlay, VerbPause, VerbSave} {
		if t, ok := transitions[v][state]; ok && t.err == nil {
			out = append(out, v)
		}
	}
	return out
}
