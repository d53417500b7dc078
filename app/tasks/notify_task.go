package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lysyi3m/music-digest/app/daterange"
)

type NotifyKind string

const (
	NotifyDigest    NotifyKind = "digest"
	NotifyNoContent NotifyKind = "no_content"
	NotifyError     NotifyKind = "error"
)

var ErrNotDelivered = errors.New("notification was not delivered")

// NotifyTask mails the digest file or a notice about the window.
type NotifyTask struct {
	Task
	mailer     Mailer
	renderer   Renderer
	kind       NotifyKind
	window     daterange.Range
	errors     []string
	digestPath string

	Sent bool
}

func NewNotifyTask(mailer Mailer, renderer Renderer, kind NotifyKind, window daterange.Range, errs []string, digestPath string) *NotifyTask {
	return &NotifyTask{
		Task:       NewTask(TaskTypeNotify, window.String()),
		mailer:     mailer,
		renderer:   renderer,
		kind:       kind,
		window:     window,
		errors:     errs,
		digestPath: digestPath,
	}
}

func (t *NotifyTask) Execute(ctx context.Context) error {
	subject, body, err := t.compose()
	if err != nil {
		return err
	}

	t.Sent = t.mailer.Send(ctx, subject, string(body))
	if !t.Sent {
		return fmt.Errorf("%w: %s", ErrNotDelivered, subject)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"kind", string(t.kind),
		"window", t.Scope,
		"duration", t.GetDuration())

	return nil
}

func (t *NotifyTask) compose() (string, []byte, error) {
	switch t.kind {
	case NotifyDigest:
		body, err := os.ReadFile(t.digestPath)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read digest %s, render it first: %w", t.digestPath, err)
		}
		return t.renderer.DigestSubject(), body, nil
	case NotifyNoContent:
		body, err := t.renderer.NoContent(t.window)
		if err != nil {
			return "", nil, err
		}
		return t.renderer.NoContentSubject(), body, nil
	case NotifyError:
		body, err := t.renderer.Failure(t.window, t.errors)
		if err != nil {
			return "", nil, err
		}
		return t.renderer.FailureSubject(), body, nil
	default:
		return "", nil, fmt.Errorf("unknown notification kind %q", t.kind)
	}
}
