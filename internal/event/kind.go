package event

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the category of a server-side notification. Kinds are
// single bits so that a set of them can be sent as a subscription Mask.
type Kind int

const (
	ObjectCreated     Kind = 1 << iota // new document, collection or other object
	ObjectDeleted                      // object removed or moved to the trash
	PropertiesChanged                  // one or more properties edited
	ContentChanged                     // new version or rendition content
	ObjectMoved                        // parent collection changed
	AccessChanged                      // ACL edited
	LinkChanged                        // links between objects added or removed
	Login
	Logout
	LoginFailed
	ClassLabelChanged // schema classes or their display labels changed
	ConfigChanged     // server configuration reloaded
)

// DescriptionNotFound is rendered for kinds missing from the name table.
const DescriptionNotFound = "Event description not found."

var kindNames = map[Kind]string{
	ObjectCreated:     "OBJECT_CREATED",
	ObjectDeleted:     "OBJECT_DELETED",
	PropertiesChanged: "PROPERTIES_CHANGED",
	ContentChanged:    "CONTENT_CHANGED",
	ObjectMoved:       "OBJECT_MOVED",
	AccessChanged:     "ACCESS_CHANGED",
	LinkChanged:       "LINK_CHANGED",
	Login:             "LOGIN",
	Logout:            "LOGOUT",
	LoginFailed:       "LOGIN_FAILED",
	ClassLabelChanged: "CLASS_LABEL_CHANGED",
	ConfigChanged:     "CONFIG_CHANGED",
}

var kindFromName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// Name returns the constant name of k, or DescriptionNotFound.
func Name(k Kind) string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return DescriptionNotFound
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Known reports whether k is present in the name table.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// IsObject reports whether k belongs to the object category, whose events
// carry a modified handle, changed property names and other modified handles.
func (k Kind) IsObject() bool {
	switch k {
	case ObjectCreated, ObjectDeleted, PropertiesChanged, ContentChanged, ObjectMoved, AccessChanged:
		return true
	}
	return false
}

// ParseKind resolves a constant name such as "LINK_CHANGED". Matching is
// case-insensitive and accepts dashes in place of underscores.
func ParseKind(name string) (Kind, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	if k, ok := kindFromName[key]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Kinds returns every known kind in ascending order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Mask is a set of kinds used as a subscription filter.
type Mask int

// AllEvents subscribes to every known kind.
var AllEvents = func() Mask {
	var m Mask
	for k := range kindNames {
		m |= Mask(k)
	}
	return m
}()

// MaskOf builds a mask from individual kinds.
func MaskOf(kinds ...Kind) Mask {
	var m Mask
	for _, k := range kinds {
		m |= Mask(k)
	}
	return m
}

// Has reports whether k is in the mask.
func (m Mask) Has(k Kind) bool {
	return m&Mask(k) != 0
}

// ParseMask parses a comma-separated list of kind names. "ALL" and the empty
// string both mean AllEvents.
func ParseMask(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") || strings.EqualFold(s, "all_events") {
		return AllEvents, nil
	}
	var m Mask
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return 0, err
		}
		m |= Mask(k)
	}
	if m == 0 {
		return 0, fmt.Errorf("empty event filter %q", s)
	}
	return m, nil
}

func (m Mask) String() string {
	if m&AllEvents == AllEvents {
		return "ALL_EVENTS"
	}
	var names []string
	for _, k := range Kinds() {
		if m.Has(k) {
			names = append(names, kindNames[k])
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, ",")
}
