// Package event defines the notifications a document server delivers to
// listeners: a closed set of variants, one per payload shape, plus the
// static kind table and the JSON wire codec.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Handle is an opaque reference to a server-side object, e.g. "Document-42".
type Handle string

func (h Handle) String() string { return string(h) }

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	Principal() string
	ID() string
	Time() time.Time
	String() string

	header() *Header
}

// Header carries the fields every variant shares. The ID and sequence are
// assigned by the transport; they have no meaning beyond a single feed.
type Header struct {
	EventKind Kind
	EventID   string
	Seq       uint64
	By        string // originating principal
	At        time.Time
}

func (h *Header) Kind() Kind { return h.EventKind }
func (h *Header) Principal() string { return h.By }
func (h *Header) ID() string { return h.EventID }
func (h *Header) Time() time.Time { return h.At }
func (h *Header) header() *Header { return h }
func (h *Header) describe() string { return fmt.Sprintf("%s by %q", Name(h.EventKind), h.By) }

// Seq returns the transport sequence number of ev.
func Seq(ev Event) uint64 { return ev.header().Seq }

// LinkEvent reports links added to or removed from an object.
type LinkEvent struct {
	Header
	Source    Handle
	LinkTypes []string
}

func (e *LinkEvent) String() string {
	return fmt.Sprintf("%s source=%s linkTypes=[%s]", e.describe(), e.Source, strings.Join(e.LinkTypes, " "))
}

// LoginEvent covers LOGIN, LOGOUT and LOGIN_FAILED. For failures UserName
// and Domain hold the attempted identity.
type LoginEvent struct {
	Header
	UserName string
	Domain   string
}

func (e *LoginEvent) String() string {
	return fmt.Sprintf("%s user=%s domain=%s", e.describe(), e.UserName, e.Domain)
}

// ObjectEvent covers every content mutation on a single object.
type ObjectEvent struct {
	Header
	Object        Handle
	PropertyNames []string
	OtherObjects  []Handle // objects modified as a side effect
}

func (e *ObjectEvent) String() string {
	others := make([]string, len(e.OtherObjects))
	for i, h := range e.OtherObjects {
		others[i] = h.String()
	}
	return fmt.Sprintf("%s object=%s props=[%s] others=[%s]",
		e.describe(), e.Object, strings.Join(e.PropertyNames, " "), strings.Join(others, " "))
}

// ClassEvent reports a schema change. Only the summary flags are carried;
// structural diffs stay on the server.
type ClassEvent struct {
	Header
	ClassNames     []string
	ClassesChanged bool
	DataChanged    bool
	StringsChanged bool
}

func (e *ClassEvent) String() string {
	return fmt.Sprintf("%s classes=[%s] classesChanged=%t dataChanged=%t stringsChanged=%t",
		e.describe(), strings.Join(e.ClassNames, " "), e.ClassesChanged, e.DataChanged, e.StringsChanged)
}

// ConfigEvent reports a server configuration change.
type ConfigEvent struct {
	Header
	Description string
}

func (e *ConfigEvent) String() string {
	return fmt.Sprintf("%s description=%q", e.describe(), e.Description)
}

// UnknownEvent is delivered for kinds this build does not recognise.
type UnknownEvent struct {
	Header
}

func (e *UnknownEvent) String() string { return e.describe() }
