package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/soyeahso/livechat/internal/config"
)

// Command returns a handler that runs command through sh with the JSON
// payload on stdin and LIVECHAT_EVENT in the environment. A zero timeout
// leaves the run bounded only by ctx.
func Command(command string, timeout time.Duration) Handler {
	return func(ctx context.Context, p Payload) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(os.Environ(), "LIVECHAT_EVENT="+p.Event)
		cmd.WaitDelay = time.Second
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("hook command %q: %w: %s", command, err, bytes.TrimSpace(out))
		}
		return nil
	}
}

// RegisterCommands installs the configured command hooks on m.
func RegisterCommands(m *Manager, cfgs []config.HookConfig) error {
	for i, hc := range cfgs {
		if !Known(hc.Event) {
			return fmt.Errorf("hooks[%d]: unknown event %q", i, hc.Event)
		}
		m.On(hc.Event, fmt.Sprintf("command:%d", i), Command(hc.Command, hc.Timeout()))
	}
	return nil
}
