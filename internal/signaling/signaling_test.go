package signaling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a minimal Agent double used to exercise collaborator
// wiring without a real SIP stack.
type fakeAgent struct {
	answer    Answer
	sendErr   error
	lastOffer Offer
	closed    bool
}

func (f *fakeAgent) SendOffer(ctx context.Context, target string, offer Offer) (Answer, error) {
	f.lastOffer = offer
	if f.sendErr != nil {
		return Answer{}, f.sendErr
	}
	return f.answer, nil
}

func (f *fakeAgent) SendAnswer(ctx context.Context, target string, answer Answer) error {
	return f.sendErr
}

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

func TestFakeAgentSatisfiesInterface(t *testing.T) {
	var _ Agent = (*fakeAgent)(nil)
}

func TestFakeAgentReturnsConfiguredAnswer(t *testing.T) {
	fa := &fakeAgent{answer: Answer{SDP: "v=0"}}
	ans, err := fa.SendOffer(context.Background(), "sip:peer@example.com", Offer{ChannelID: "chan1", SDP: "offer-sdp"})
	require.NoError(t, err)
	assert.Equal(t, "v=0", ans.SDP)
	assert.Equal(t, "chan1", fa.lastOffer.ChannelID)
}

func TestFakeAgentPropagatesSendFailure(t *testing.T) {
	wantErr := errors.New("no route to host")
	fa := &fakeAgent{sendErr: wantErr}
	_, err := fa.SendOffer(context.Background(), "sip:peer@example.com", Offer{})
	assert.ErrorIs(t, err, wantErr)
}

func TestGosipAgentSendOfferReportsUnimplemented(t *testing.T) {
	a := NewGosipAgent(func(target string, raw []byte) error { return nil })
	_, err := a.SendOffer(context.Background(), "sip:peer@example.com", Offer{ChannelID: "chan1"})
	assert.Error(t, err)
}

func TestGosipAgentHandleInboundRejectsUnparsableGarbage(t *testing.T) {
	a := NewGosipAgent(func(target string, raw []byte) error { return nil })
	err := a.HandleInbound([]byte("not a sip message"))
	assert.Error(t, err)
}

func TestGosipAgentCloseIsNoop(t *testing.T) {
	a := NewGosipAgent(func(target string, raw []byte) error { return nil })
	assert.NoError(t, a.Close())
}
