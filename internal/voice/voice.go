// Package voice plays spoken classroom warnings, falling back to a terminal
// bell when no speech synthesizer is available.
package voice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"classwatch/internal/alerts"
)

type Category string

const (
	CategoryUnauthorized Category = "unauthorized"
	CategoryProhibited   Category = "prohibited"
	CategoryDistraction  Category = "distraction"
)

var phrases = map[Category]string{
	CategoryUnauthorized: "Unauthorized person detected. Please leave the classroom immediately.",
	CategoryProhibited:   "Face covering detected. Please remove mask or hat for identification.",
	CategoryDistraction:  "Classroom violation detected. Please focus on the lesson.",
}

// Phrase is the spoken text for c, empty for an unknown category.
func Phrase(c Category) string { return phrases[c] }

// ForAlert maps an alert type to the warning that announces it.
func ForAlert(t alerts.Type) (Category, bool) {
	switch t {
	case alerts.TypeUnauthorized:
		return CategoryUnauthorized, true
	case alerts.TypeProhibitedItem:
		return CategoryProhibited, true
	case alerts.TypeDistraction, alerts.TypeViolation:
		return CategoryDistraction, true
	}
	return "", false
}

// Speaker turns text into audio.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// CommandSpeaker runs an external text-to-speech program with the text as
// its last argument.
type CommandSpeaker struct {
	path string
	args []string
}

// NewCommandSpeaker resolves name on PATH. espeak is slowed to 80% of its
// default rate.
func NewCommandSpeaker(name string, args ...string) (*CommandSpeaker, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	if len(args) == 0 && name == "espeak" {
		args = []string{"-s", "140", "-a", "160"}
	}
	return &CommandSpeaker{path: path, args: args}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	args := append(append([]string{}, s.args...), text)
	out, err := exec.CommandContext(ctx, s.path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("voice: %s: %w: %s", s.path, err, out)
	}
	return nil
}

// Mode tells how an announcement was played.
type Mode string

const (
	ModeSpeech Mode = "speech"
	ModeTone   Mode = "tone"
	ModeNone   Mode = "none"
)

const bell = "\a"

// Announcer plays one announcement at a time. Failures are logged, never
// returned.
type Announcer struct {
	speaker Speaker
	tone    io.Writer
	logger  *zap.Logger

	mu sync.Mutex
}

// NewAnnouncer uses speaker when non-nil and writes a bell to tone otherwise
// or when speech fails. Both may be nil.
func NewAnnouncer(speaker Speaker, tone io.Writer, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{speaker: speaker, tone: tone, logger: logger}
}

// Announce speaks the phrase for c.
func (a *Announcer) Announce(ctx context.Context, c Category) Mode {
	text := Phrase(c)
	if text == "" {
		a.logger.Warn("unknown voice category", zap.String("category", string(c)))
		return ModeNone
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.speaker != nil {
		err := a.speaker.Speak(ctx, text)
		if err == nil {
			a.logger.Info("voice alert played", zap.String("category", string(c)))
			return ModeSpeech
		}
		a.logger.Warn("speech failed, using tone", zap.Error(err))
	}
	return a.beep()
}

// Success plays the short confirmation tone used after a registration.
func (a *Announcer) Success(context.Context) Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.beep()
}

func (a *Announcer) beep() Mode {
	if a.tone == nil {
		return ModeNone
	}
	if _, err := io.WriteString(a.tone, bell); err != nil {
		a.logger.Error("audio alert failed", zap.Error(err))
		return ModeNone
	}
	return ModeTone
}
