package resource

import "firestige.xyz/mrcpd/internal/stream"

// noHeaders is the default vtable for a resource that defines no
// resource-specific header fields of its own: every field falls through
// to the generic table.
type noHeaders struct{}

func (noHeaders) FieldCount() int { return 0 }
func (noHeaders) ParseField(stream.HeaderField) (stream.Field, bool) {
	return stream.Field{}, false
}
func (noHeaders) GenerateField(stream.Field) (string, string, bool) { return "", "", false }
func (noHeaders) NameByID(int) string                               { return "" }

// synthesizerMethods and synthesizerEvents are the SYNTHESIZER resource's
// method and event vocabularies (RFC 6787 §9).
var synthesizerMethods = []string{
	"SET-PARAMS", "GET-PARAMS", "SPEAK", "STOP",
	"PAUSE", "RESUME", "BARGE-IN-OCCURRED", "CONTROL", "DEFINE-LEXICON",
}

var synthesizerEvents = []string{"SPEECH-MARKER", "SPEAK-COMPLETE"}

// recognizerMethods and recognizerEvents are the RECOGNIZER resource's
// method and event vocabularies (RFC 6787 §10).
var recognizerMethods = []string{
	"SET-PARAMS", "GET-PARAMS", "DEFINE-GRAMMAR", "RECOGNIZE",
	"INTERPRET", "GET-RESULT", "START-INPUT-TIMERS", "STOP",
	"DEFINE-LEXICON",
}

var recognizerEvents = []string{
	"START-OF-INPUT", "RECOGNITION-COMPLETE", "INTERPRETATION-COMPLETE",
}

// RegisterBuiltins registers the SYNTHESIZER and RECOGNIZER resources
// against c, used whenever config does not supply its own catalogue
// section (SPEC_FULL.md "resource-catalogue loading from config").
func RegisterBuiltins(c *Catalogue) error {
	if _, err := c.Register("speechsynth", synthesizerMethods, synthesizerEvents, noHeaders{}); err != nil {
		return err
	}
	if _, err := c.Register("speechrecog", recognizerMethods, recognizerEvents, noHeaders{}); err != nil {
		return err
	}
	return nil
}
