// Package tracing emits SkyWalking distributed-tracing spans for a
// session's lifecycle (offer, update, terminate) and for individual
// MRCP request/response pairs, correlated by the Channel-Identifier
// header the way the teacher's SIP tracing plugin correlates by
// Call-ID.
package tracing

import (
	"fmt"
	"log/slog"
	"sync"

	common "skywalking.apache.org/repo/goapi/collect/common/v3"
	agentv3 "skywalking.apache.org/repo/goapi/collect/language/agent/v3"
)

// Reporter hands a finished segment off to its next destination. The
// default LogReporter writes a structured summary; a production
// deployment supplies one backed by the SkyWalking OAP gRPC endpoint
// or a local satellite sidecar socket.
type Reporter interface {
	Report(segment *agentv3.SegmentObject) error
}

// LogReporter logs segments at debug level. It is the Reporter used
// when no OAP address is configured, grounded in the same "print
// instead of dropping silently" instinct the teacher's stats monitor
// uses for otherwise-unobserved background state.
type LogReporter struct{}

func (LogReporter) Report(segment *agentv3.SegmentObject) error {
	slog.Debug("tracing segment", "trace_id", segment.TraceId, "segment_id", segment.TraceSegmentId, "spans", len(segment.Spans))
	return nil
}

// Tracer builds one segment per session and appends a span per
// lifecycle phase or per MRCP request/response pair, matching the
// teacher's one-segment-per-dialog convention (context.go's
// TraceContext, here keyed by Channel-Identifier instead of Call-ID).
type Tracer struct {
	serviceName     string
	serviceInstance string
	reporter        Reporter

	mu       sync.Mutex
	segments map[string]*agentv3.SegmentObject // keyed by channel ID
}

func New(serviceName, serviceInstance string, reporter Reporter) *Tracer {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Tracer{
		serviceName:     serviceName,
		serviceInstance: serviceInstance,
		reporter:        reporter,
		segments:        make(map[string]*agentv3.SegmentObject),
	}
}

// StartSession opens a segment for channelID, tagged with traceID
// (caller-supplied, e.g. the SIP Call-ID or a generated UUID).
func (t *Tracer) StartSession(channelID, traceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments[channelID] = &agentv3.SegmentObject{
		TraceId:         traceID,
		TraceSegmentId:  fmt.Sprintf("%s-%s", t.serviceInstance, channelID),
		Service:         t.serviceName,
		ServiceInstance: t.serviceInstance,
		Spans:           make([]*agentv3.SpanObject, 0, 4),
		IsSizeLimited:   true,
	}
}

// SpanPhase names a session lifecycle span, each a Local span on the
// session's segment (the teacher's trace_manager.go defaults
// custom-scenario spans to Local/Unknown since the protocol has no
// dedicated SkyWalking component ID).
type SpanPhase string

const (
	PhaseOffer     SpanPhase = "offer"
	PhaseUpdate    SpanPhase = "update"
	PhaseTerminate SpanPhase = "terminate"
)

// RecordPhase appends a completed lifecycle span to channelID's
// segment. startMS/endMS are epoch milliseconds supplied by the
// caller, since this package never calls time.Now itself.
func (t *Tracer) RecordPhase(channelID string, phase SpanPhase, startMS, endMS int64, err error) {
	t.appendSpan(channelID, string(phase), startMS, endMS, err, nil)
}

// RecordRequest appends a span for one MRCP request/response pair.
func (t *Tracer) RecordRequest(channelID, method string, startMS, endMS int64, statusCode int, err error) {
	tags := []*common.KeyStringValuePair{
		{Key: "mrcp.method", Value: method},
		{Key: "mrcp.status_code", Value: fmt.Sprintf("%d", statusCode)},
	}
	t.appendSpan(channelID, "mrcp."+method, startMS, endMS, err, tags)
}

func (t *Tracer) appendSpan(channelID, operation string, startMS, endMS int64, err error, tags []*common.KeyStringValuePair) {
	t.mu.Lock()
	seg, ok := t.segments[channelID]
	t.mu.Unlock()
	if !ok {
		slog.Warn("tracing: span recorded for unknown channel, dropping", "channel", channelID, "operation", operation)
		return
	}

	span := &agentv3.SpanObject{
		SpanId:        int32(len(seg.Spans)),
		ParentSpanId:  -1,
		StartTime:     startMS,
		EndTime:       endMS,
		OperationName: operation,
		SpanType:      agentv3.SpanType_Local,
		SpanLayer:     agentv3.SpanLayer_Unknown,
		IsError:       err != nil,
		Tags:          tags,
	}
	if err != nil {
		span.Tags = append(span.Tags, &common.KeyStringValuePair{Key: "error.message", Value: err.Error()})
	}

	t.mu.Lock()
	seg.Spans = append(seg.Spans, span)
	t.mu.Unlock()
}

// EndSession closes and reports channelID's segment, then forgets it.
func (t *Tracer) EndSession(channelID string) error {
	t.mu.Lock()
	seg, ok := t.segments[channelID]
	delete(t.segments, channelID)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("mrcpd: tracing: end session: unknown channel %s", channelID)
	}
	return t.reporter.Report(seg)
}
