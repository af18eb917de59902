package session

import (
	"context"
	"fmt"

	"firestige.xyz/mrcpd/internal/signaling"
)

// SignalingOffer is the Work.Payload shape the signalling collaborator
// below expects: the target to reach and the offer to send. A
// terminate round's Work.Payload is ignored, since closing the
// signalling leg takes no parameters.
type SignalingOffer struct {
	Target string
	Offer  signaling.Offer
}

// NewSignalingCollaborator adapts a signaling.Agent into the
// Collaborator shape Session.Offer and Session.Terminate dispatch,
// so the state machine never depends on the SIP transport directly.
// It expects a *RoundContext payload naming a SignalingOffer, and
// records the negotiated answer on the session on success.
func NewSignalingCollaborator(agent signaling.Agent) Collaborator {
	return func(w Work) error {
		rc, ok := w.Payload.(*RoundContext)
		if !ok || rc.Signaling == nil {
			return fmt.Errorf("mrcpd: session: signaling collaborator requires a RoundContext with Signaling set, got %T", w.Payload)
		}
		answer, err := agent.SendOffer(context.Background(), rc.Signaling.Target, rc.Signaling.Offer)
		if err != nil {
			return err
		}
		if rc.Session != nil {
			rc.Session.SetAnswer(Descriptor{SDP: answer.SDP})
		}
		return nil
	}
}
