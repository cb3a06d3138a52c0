package hook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"chatguard/config"
)

// Runner is told when a sender has been muted automatically.
type Runner interface {
	Run(ctx context.Context, senderID, reason string, duration time.Duration) error
}

// Command runs an external executable, e.g. a bridge to the server console.
// Its arguments may use the {sender}, {reason} and {duration} placeholders.
type Command struct {
	executablePath string
	args           []string
	timeout        time.Duration
}

var _ Runner = (*Command)(nil)

func NewCommand(cfg config.HookConfig) *Command {
	return &Command{
		executablePath: cfg.ExecutablePath,
		args:           cfg.Args,
		timeout:        cfg.Timeout,
	}
}

// Enabled reports whether an executable is configured.
func (c *Command) Enabled() bool { return c != nil && c.executablePath != "" }

func (c *Command) Run(ctx context.Context, senderID, reason string, duration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	r := strings.NewReplacer(
		"{sender}", senderID,
		"{reason}", reason,
		"{duration}", duration.String(),
	)
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.executablePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of the executable may hold stderr open after it is killed.
	cmd.WaitDelay = time.Second

	slog.Info("Executing mute hook", "sender_id", senderID, "command", cmd.String())

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mute hook failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	slog.Debug("Mute hook completed", "sender_id", senderID)
	return nil
}
