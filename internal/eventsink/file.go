package eventsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kiliankoe/buzzer/internal/game"
)

// File appends round results to a plain text log, one line per event.
// Lobby churn is not recorded.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) Publish(ctx context.Context, ev game.Event) error {
	line := formatLine(ev)
	if line == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

func formatLine(ev game.Event) string {
	var what string
	switch p := ev.Payload.(type) {
	case game.FirstBuzz:
		what = "winner " + p.Player
	case game.GameStarted:
		what = "round started"
	case game.RoundReset:
		what = "round reset"
	default:
		return ""
	}
	var sb strings.Builder
	sb.WriteString(ev.At.Format(time.RFC3339))
	sb.WriteString(fmt.Sprintf("  %-6s  round %-4d  %s\n", ev.Room, ev.Epoch, what))
	return sb.String()
}
