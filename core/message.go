package core

import "fmt"

// Message is the normalized input accepted by every generation call. It can
// be built from a plain string, a single content or an ordered content
// sequence and is immutable once constructed: accessors hand out copies so a
// message shared across parallel branches cannot be mutated by any of them.
type Message struct {
	contents []Content
}

// Text builds a message from a plain user string.
func Text(text string) Message {
	return Message{contents: []Content{UserText(text)}}
}

// FromContent builds a message from a single content value.
func FromContent(c Content) Message {
	return Message{contents: []Content{c}}
}

// FromContents builds a message from an ordered content sequence.
func FromContents(contents ...Content) Message {
	cloned := make([]Content, len(contents))
	copy(cloned, contents)
	return Message{contents: cloned}
}

// Contents returns a copy of the message's ordered contents.
func (m Message) Contents() []Content {
	cloned := make([]Content, len(m.contents))
	copy(cloned, m.contents)
	return cloned
}

// Empty reports whether the message carries no contents.
func (m Message) Empty() bool { return len(m.contents) == 0 }

// Text concatenates the text of all contents, separated by newlines.
func (m Message) Text() string { return ContentsText(m.contents) }

// stringify renders a value for textual coercion without failing.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
