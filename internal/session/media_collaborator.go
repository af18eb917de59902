package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"firestige.xyz/mrcpd/internal/media"
	"firestige.xyz/mrcpd/internal/task"
)

// MediaOffer is the Media leg of a RoundContext: the media context a
// channel's termination lives on (one per session, per §3), and the
// termination to bind. Slot is set on a MoveTermination/Replace style
// update that targets a specific slot; -1 lets the engine auto-assign
// one.
type MediaOffer struct {
	ContextID   string
	Termination *media.Termination
	Slot        int
}

const mediaReplyTimeout = 5 * time.Second

// NewMediaCollaborator adapts a media engine into the Collaborator
// shape: it lazily creates the context (tolerating a concurrent
// creation racing it), submits ModifyTermination, and binds the
// channel's media side on success (§3).
func NewMediaCollaborator(e *media.Engine) Collaborator {
	return func(w Work) error {
		rc, ok := w.Payload.(*RoundContext)
		if !ok || rc.Media == nil || rc.Channel == nil {
			return fmt.Errorf("mrcpd: session: media collaborator requires a RoundContext with Media and Channel set, got %T", w.Payload)
		}

		if e.Context(rc.Media.ContextID) == nil {
			if _, err := submitMediaRequest(e, media.Request{Kind: media.AddContext, ContextID: rc.Media.ContextID}); err != nil &&
				!strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("mrcpd: session: media add context %s: %w", rc.Media.ContextID, err)
			}
		}

		slot, err := submitMediaRequest(e, media.Request{
			Kind:        media.ModifyTermination,
			ContextID:   rc.Media.ContextID,
			Slot:        rc.Media.Slot,
			Termination: rc.Media.Termination,
		})
		if err != nil {
			return fmt.Errorf("mrcpd: session: media modify termination on context %s: %w", rc.Media.ContextID, err)
		}
		rc.Channel.BindTermination(rc.Media.Termination.Name, slot)
		return nil
	}
}

// NewMediaTeardownCollaborator adapts a media engine's
// SubtractTermination path into the Collaborator shape used on
// terminate rounds.
func NewMediaTeardownCollaborator(e *media.Engine) Collaborator {
	return func(w Work) error {
		rc, ok := w.Payload.(*RoundContext)
		if !ok || rc.Media == nil || rc.Channel == nil {
			return fmt.Errorf("mrcpd: session: media teardown collaborator requires a RoundContext with Media and Channel set, got %T", w.Payload)
		}
		_, err := submitMediaRequest(e, media.Request{
			Kind:      media.SubtractTermination,
			ContextID: rc.Media.ContextID,
			Slot:      rc.Channel.Slot(),
		})
		if err != nil {
			return fmt.Errorf("mrcpd: session: media subtract termination on context %s: %w", rc.Media.ContextID, err)
		}
		rc.Channel.UnbindTermination()
		return nil
	}
}

// submitMediaRequest submits req and blocks for the engine's next
// tick to apply and reply, bounded by mediaReplyTimeout.
func submitMediaRequest(e *media.Engine, req media.Request) (int, error) {
	replyTo, respCh := newMediaReplyTarget()
	defer replyTo.Terminate(false)

	req.ReplyTo = replyTo
	e.Submit(req)

	select {
	case resp := <-respCh:
		return resp.Slot, resp.Err
	case <-time.After(mediaReplyTimeout):
		return -1, fmt.Errorf("mrcpd: session: media engine reply: %w", context.DeadlineExceeded)
	}
}

func newMediaReplyTarget() (*task.Base, chan media.Response) {
	respCh := make(chan media.Response, 1)
	b := task.NewBase("session-media-reply", task.Hooks{
		Run: task.RunUntilTerminate(func(m task.Msg) {
			if resp, ok := m.Data.(media.Response); ok {
				respCh <- resp
			}
		}),
	}, 1)
	b.Start()
	return b, respCh
}
