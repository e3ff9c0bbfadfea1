/*
Package message defines the persisted chat message, its destination and its
delivery status state machine.
*/
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/pkg/errs"
)

// MaxBodyBytes is the maximum size of a message body.
const MaxBodyBytes = 5000

// Status is the delivery stage of a message. Values are ordered.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusRead
)

var statusNames = [...]string{"sent", "delivered", "read"}

// String returns the wire name of s.
func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the defined stages.
func (s Status) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

// CanAdvanceTo reports whether next is strictly later than s.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next > s
}

// ParseStatus converts a wire name to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message status %q", name)
}

// MarshalJSON encodes s by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes s from its name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Destination names exactly one of a peer user or a group.
type Destination struct {
	Receiver string `json:"receiver,omitempty"`
	Group    string `json:"group,omitempty"`
}

// ToUser returns a direct destination.
func ToUser(id string) Destination { return Destination{Receiver: id} }

// ToGroup returns a group destination.
func ToGroup(id string) Destination { return Destination{Group: id} }

// IsGroup reports whether d targets a group.
func (d Destination) IsGroup() bool { return d.Group != "" }

// Validate enforces the exactly-one-of rule.
func (d Destination) Validate() error {
	if (d.Receiver == "") == (d.Group == "") {
		return errs.NewError(errs.ErrInvalidDestination)
	}
	return nil
}

// key is the canonical form used in fingerprints.
func (d Destination) key() string {
	if d.IsGroup() {
		return "group:" + d.Group
	}
	return "user:" + d.Receiver
}

// Message is a persisted chat message.
type Message struct {
	ID         string `json:"id"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver,omitempty"`
	Group      string `json:"group,omitempty"`
	Body       string `json:"body"`
	Attachment string `json:"attachment,omitempty"`
	Status     Status `json:"status"`

	// Timestamp is assigned by the server and is authoritative.
	Timestamp time.Time `json:"timestamp"`

	// ClientTimestamp is the sender's clock, kept for display only.
	ClientTimestamp *time.Time `json:"clientTimestamp,omitempty"`

	// Fingerprint identifies the logical send for deduplication.
	Fingerprint string `json:"-"`
}

// Destination returns the message's destination.
func (m Message) Destination() Destination {
	return Destination{Receiver: m.Receiver, Group: m.Group}
}

// IsAddressedTo reports whether userID is a recipient of a direct message.
// Group recipients are resolved against membership by the caller.
func (m Message) IsAddressedTo(userID string) bool {
	return m.Group == "" && m.Receiver == userID
}

// Draft is an unsaved message as submitted by a client.
type Draft struct {
	Sender          string
	Destination     Destination
	Body            string
	Attachment      string
	ClientTimestamp *time.Time
}

// Validate checks the destination, the sender and the content of d.
func (d Draft) Validate() error {
	if d.Sender == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := d.Destination.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Body) == "" && d.Attachment == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}
	if len(d.Body) > MaxBodyBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	return nil
}

// Fingerprint hashes the fields that make two submissions the same logical send.
func (d Draft) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{d.Sender, d.Destination.key(), d.Body, d.Attachment} {
		fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build turns d into a message with status sent.
func (d Draft) Build(id string, now time.Time) Message {
	return Message{
		ID:              id,
		Sender:          d.Sender,
		Receiver:        d.Destination.Receiver,
		Group:           d.Destination.Group,
		Body:            d.Body,
		Attachment:      d.Attachment,
		Status:          StatusSent,
		Timestamp:       now,
		ClientTimestamp: d.ClientTimestamp,
		Fingerprint:     d.Fingerprint(),
	}
}

// ConversationPair orders the participants of a direct conversation so that
// both directions name the same pair.
func ConversationPair(a, b string) (lo, hi string) {
	if a > b {
		return b, a
	}
	return a, b
}
