package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/logging"
)

// ErrNoCommand is returned by a CommandPlayer with an empty command line.
var ErrNoCommand = errors.New("sound: no player command configured")

// Player outputs an encoded WAV cue.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// BellPlayer rings the terminal bell instead of playing audio.
type BellPlayer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellPlayer writes BEL to w, or to stderr when w is nil.
func NewBellPlayer(w io.Writer) *BellPlayer {
	if w == nil {
		w = os.Stderr
	}
	return &BellPlayer{w: w}
}

func (b *BellPlayer) Play(_ context.Context, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// CommandPlayer pipes the WAV stream to an external program such as
// "aplay -q" or "paplay". A "{file}" argument is replaced by a temporary
// WAV file path for players that cannot read stdin.
type CommandPlayer struct {
	args []string
}

func NewCommandPlayer(command string) *CommandPlayer {
	return &CommandPlayer{args: strings.Fields(command)}
}

func (c *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	if len(c.args) == 0 {
		return ErrNoCommand
	}

	args := append([]string(nil), c.args[1:]...)
	useFile := false
	for _, a := range args {
		if a == "{file}" {
			useFile = true
			break
		}
	}

	var stdin io.Reader = bytes.NewReader(wav)
	if useFile {
		f, err := os.CreateTemp("", "livechat-*.wav")
		if err != nil {
			return fmt.Errorf("sound: temp file: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(wav); err != nil {
			f.Close()
			return fmt.Errorf("sound: write temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("sound: close temp file: %w", err)
		}
		for i, a := range args {
			if a == "{file}" {
				args[i] = f.Name()
			}
		}
		stdin = nil
	}

	cmd := exec.CommandContext(ctx, c.args[0], args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("sound: %s: %w: %s", c.args[0], err, msg)
		}
		return fmt.Errorf("sound: %s: %w", c.args[0], err)
	}
	return nil
}

// SilentPlayer discards every cue.
type SilentPlayer struct{}

func (SilentPlayer) Play(context.Context, []byte) error { return nil }

// Notifier plays a pre-rendered cue through a Player.
type Notifier struct {
	player Player
	wav    []byte
	log    *logging.Logger
}

// NewNotifier renders tone once and plays it through player.
func NewNotifier(player Player, tone Tone, log *logging.Logger) *Notifier {
	if log == nil {
		log = logging.Nop()
	}
	return &Notifier{player: player, wav: tone.WAV(), log: log}
}

// FromConfig builds the notifier described by the widget sound section.
// Disabled selects the silent player regardless of configuration.
func FromConfig(cfg config.SoundConfig, disabled bool, log *logging.Logger) *Notifier {
	var p Player
	switch {
	case disabled || cfg.Player == "none":
		p = SilentPlayer{}
	case cfg.Player == "command":
		p = NewCommandPlayer(cfg.Command)
	default:
		p = NewBellPlayer(nil)
	}
	tone := DefaultTone()
	if cfg.Frequency > 0 {
		tone.Frequency = cfg.Frequency
	}
	if cfg.DurationMs > 0 {
		tone.Duration = msDuration(cfg.DurationMs)
	}
	return NewNotifier(p, tone, log)
}

// Notify plays the cue. Failures are returned for the caller to log.
func (n *Notifier) Notify(ctx context.Context) error {
	if err := n.player.Play(ctx, n.wav); err != nil {
		n.log.Debug().Err(err).Msg("notification cue failed")
		return err
	}
	return nil
}
