package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed event")

// Record is the wire form of an event: one flat object whose populated
// fields depend on Kind.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Principal string    `json:"principal,omitempty"`
	Time      time.Time `json:"time"`

	Source    Handle   `json:"source,omitempty"`
	LinkTypes []string `json:"linkTypes,omitempty"`

	Object        Handle   `json:"object,omitempty"`
	PropertyNames []string `json:"propertyNames,omitempty"`
	OtherObjects  []Handle `json:"otherObjects,omitempty"`

	UserName string `json:"userName,omitempty"`
	Domain   string `json:"domain,omitempty"`

	ClassNames     []string `json:"classNames,omitempty"`
	ClassesChanged bool     `json:"classesChanged,omitempty"`
	DataChanged    bool     `json:"dataChanged,omitempty"`
	StringsChanged bool     `json:"stringsChanged,omitempty"`

	Description string `json:"description,omitempty"`
}

// DecodeError describes an event frame that could not be turned into a
// variant. The feed carries on past it.
type DecodeError struct {
	Seq uint64
	Raw json.RawMessage
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event seq %d: %v", e.Seq, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode flattens ev into its wire record.
func Encode(ev Event) Record {
	h := ev.header()
	r := Record{
		ID:        h.EventID,
		Kind:      h.EventKind,
		Principal: h.By,
		Time:      h.At,
	}
	switch e := ev.(type) {
	case *LinkEvent:
		r.Source = e.Source
		r.LinkTypes = e.LinkTypes
	case *LoginEvent:
		r.UserName = e.UserName
		r.Domain = e.Domain
	case *ObjectEvent:
		r.Object = e.Object
		r.PropertyNames = e.PropertyNames
		r.OtherObjects = e.OtherObjects
	case *ClassEvent:
		r.ClassNames = e.ClassNames
		r.ClassesChanged = e.ClassesChanged
		r.DataChanged = e.DataChanged
		r.StringsChanged = e.StringsChanged
	case *ConfigEvent:
		r.Description = e.Description
	case *UnknownEvent:
	}
	return r
}

// Decode parses a wire record delivered with sequence number seq.
func Decode(seq uint64, raw json.RawMessage) (Event, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &DecodeError{Seq: seq, Raw: raw, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	ev, err := r.Event(seq)
	if err != nil {
		return nil, &DecodeError{Seq: seq, Raw: raw, Err: err}
	}
	return ev, nil
}

// Event builds the variant matching r.Kind.
func (r Record) Event(seq uint64) (Event, error) {
	h := Header{EventKind: r.Kind, EventID: r.ID, Seq: seq, By: r.Principal, At: r.Time}

	switch {
	case r.Kind == LinkChanged:
		return &LinkEvent{Header: h, Source: r.Source, LinkTypes: r.LinkTypes}, nil

	case r.Kind == Login, r.Kind == Logout, r.Kind == LoginFailed:
		if r.Kind == LoginFailed && r.UserName == "" {
			return nil, fmt.Errorf("%w: %s without userName", ErrMalformed, Name(r.Kind))
		}
		return &LoginEvent{Header: h, UserName: r.UserName, Domain: r.Domain}, nil

	case r.Kind.IsObject():
		if r.Object == "" {
			return nil, fmt.Errorf("%w: %s without object handle", ErrMalformed, Name(r.Kind))
		}
		return &ObjectEvent{
			Header:        h,
			Object:        r.Object,
			PropertyNames: r.PropertyNames,
			OtherObjects:  r.OtherObjects,
		}, nil

	case r.Kind == ClassLabelChanged:
		return &ClassEvent{
			Header:         h,
			ClassNames:     r.ClassNames,
			ClassesChanged: r.ClassesChanged,
			DataChanged:    r.DataChanged,
			StringsChanged: r.StringsChanged,
		}, nil

	case r.Kind == ConfigChanged:
		return &ConfigEvent{Header: h, Description: r.Description}, nil
	}
	return &UnknownEvent{Header: h}, nil
}
