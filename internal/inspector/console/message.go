// Package console holds the per-page console state the session controller
// keeps across attachments: buffered messages, time() timers and count()
// counters.
package console

import "github.com/dshills/webinspector/internal/protocol/value"

// Source identifies what produced a console message.
type Source int

const (
	SourceHTML Source = iota
	SourceXML
	SourceJS
	SourceCSS
	SourceOther
)

// String returns a string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceHTML:
		return "html"
	case SourceXML:
		return "xml"
	case SourceJS:
		return "javascript"
	case SourceCSS:
		return "css"
	case SourceOther:
		return "other"
	default:
		return "unknown"
	}
}

// Kind is the console call that produced a message.
type Kind int

const (
	KindLog Kind = iota
	KindObject
	KindTrace
	KindStartGroup
	KindEndGroup
	KindAssert
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindObject:
		return "object"
	case KindTrace:
		return "trace"
	case KindStartGroup:
		return "startGroup"
	case KindEndGroup:
		return "endGroup"
	case KindAssert:
		return "assert"
	default:
		return "unknown"
	}
}

// Level is the severity of a message.
type Level int

const (
	LevelTip Level = iota
	LevelLog
	LevelWarning
	LevelError
	LevelDebug
)

// String returns a string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelTip:
		return "tip"
	case LevelLog:
		return "log"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Message is one buffered console message.
type Message struct {
	Source      Source
	Kind        Kind
	Level       Level
	Text        string
	Line        int
	URL         string
	GroupLevel  int
	RepeatCount int
}

// IsEqual reports whether m and other would render identically, ignoring the
// repeat count. Identical consecutive messages are coalesced.
func (m *Message) IsEqual(other *Message) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Source == other.Source &&
		m.Kind == other.Kind &&
		m.Level == other.Level &&
		m.Text == other.Text &&
		m.Line == other.Line &&
		m.URL == other.URL &&
		m.GroupLevel == other.GroupLevel
}

// ToValue builds the protocol object for the message.
func (m *Message) ToValue() *value.Object {
	o := value.NewObject()
	o.SetString("source", m.Source.String())
	o.SetString("type", m.Kind.String())
	o.SetString("level", m.Level.String())
	o.SetInt("line", m.Line)
	o.SetString("url", m.URL)
	o.SetInt("groupLevel", m.GroupLevel)
	o.SetInt("repeatCount", m.RepeatCount)
	o.SetString("message", m.Text)
	return o
}
