package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"
)

type captureReporter struct {
	reported *agentv3.SegmentObject
}

func (c *captureReporter) Report(segment *agentv3.SegmentObject) error {
	c.reported = segment
	return nil
}

func TestTracerRecordsSessionLifecycleSpans(t *testing.T) {
	rep := &captureReporter{}
	tr := New("mrcpd", "instance-1", rep)

	tr.StartSession("chan1@speechsynth", "trace-abc")
	tr.RecordPhase("chan1@speechsynth", PhaseOffer, 1000, 1050, nil)
	tr.RecordPhase("chan1@speechsynth", PhaseTerminate, 2000, 2010, nil)

	require.NoError(t, tr.EndSession("chan1@speechsynth"))
	require.NotNil(t, rep.reported)
	assert.Equal(t, "trace-abc", rep.reported.TraceId)
	assert.Len(t, rep.reported.Spans, 2)
	assert.Equal(t, "offer", rep.reported.Spans[0].OperationName)
	assert.Equal(t, "terminate", rep.reported.Spans[1].OperationName)
	assert.False(t, rep.reported.Spans[0].IsError)
}

func TestTracerRecordRequestTagsStatusAndMethod(t *testing.T) {
	rep := &captureReporter{}
	tr := New("mrcpd", "instance-1", rep)
	tr.StartSession("chan1@speechsynth", "trace-abc")

	tr.RecordRequest("chan1@speechsynth", "SPEAK", 1000, 1200, 200, nil)
	require.NoError(t, tr.EndSession("chan1@speechsynth"))

	span := rep.reported.Spans[0]
	assert.Equal(t, "mrcp.SPEAK", span.OperationName)
	var sawMethod, sawStatus bool
	for _, tag := range span.Tags {
		if tag.Key == "mrcp.method" && tag.Value == "SPEAK" {
			sawMethod = true
		}
		if tag.Key == "mrcp.status_code" && tag.Value == "200" {
			sawStatus = true
		}
	}
	assert.True(t, sawMethod)
	assert.True(t, sawStatus)
}

func TestTracerRecordPhaseMarksErrorSpan(t *testing.T) {
	rep := &captureReporter{}
	tr := New("mrcpd", "instance-1", rep)
	tr.StartSession("chan1@speechsynth", "trace-abc")

	tr.RecordPhase("chan1@speechsynth", PhaseOffer, 1000, 1010, errors.New("connection refused"))
	require.NoError(t, tr.EndSession("chan1@speechsynth"))

	assert.True(t, rep.reported.Spans[0].IsError)
}

func TestTracerRecordPhaseOnUnknownChannelDoesNotPanic(t *testing.T) {
	tr := New("mrcpd", "instance-1", nil)
	tr.RecordPhase("unknown-channel", PhaseOffer, 0, 1, nil)
}

func TestTracerEndSessionOnUnknownChannelErrors(t *testing.T) {
	tr := New("mrcpd", "instance-1", nil)
	err := tr.EndSession("unknown-channel")
	assert.Error(t, err)
}
