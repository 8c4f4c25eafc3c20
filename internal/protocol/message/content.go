package message

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"dim_chat/internal/model"
	"dim_chat/internal/protocol/identity"
)

// Content is the plaintext body of a message: a JSON object with type, sn
// and time, plus fields specific to the type.
type Content map[string]any

var contentShortKeys = map[string]string{
	"T": "type",
	"N": "sn",
	"W": "time",
	"G": "group",
}

func NewContent(t model.ContentType) Content {
	return Content{
		"type": uint8(t),
		"sn":   rand.Uint32(),
		"time": unixSeconds(time.Now()),
	}
}

// NewText returns a text content.
func NewText(text string) Content {
	c := NewContent(model.ContentText)
	c["text"] = text
	return c
}

// ParseContent decodes a content object and requires its type.
func ParseContent(data []byte) (Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("content: null")
	}
	if _, ok := c["type"]; !ok {
		return nil, fmt.Errorf("content: missing type")
	}
	return c, nil
}

// UnmarshalJSON accepts the single-letter field names too.
func (c *Content) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for short, full := range contentShortKeys {
		if v, ok := fields[short]; ok {
			if _, exists := fields[full]; !exists {
				fields[full] = v
			}
			delete(fields, short)
		}
	}
	*c = fields
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case uint8:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func (c Content) Type() model.ContentType {
	n, _ := number(c["type"])
	return model.ContentType(n)
}

func (c Content) SN() uint64 {
	n, _ := number(c["sn"])
	return uint64(n)
}

func (c Content) Time() time.Time {
	n, ok := number(c["time"])
	if !ok {
		return time.Time{}
	}
	return fromSeconds(n)
}

func (c Content) Text() string {
	s, _ := c["text"].(string)
	return s
}

// Group is the group a content belongs to, carried inside the body when the
// envelope hides it.
func (c Content) Group() *identity.ID {
	s, ok := c["group"].(string)
	if !ok {
		return nil
	}
	id, err := identity.Parse(s)
	if err != nil {
		return nil
	}
	return id
}

func (c Content) SetGroup(group *identity.ID) {
	if group == nil {
		delete(c, "group")
		return
	}
	c["group"] = group.String()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func fromSeconds(s float64) time.Time {
	return time.UnixMilli(int64(math.Round(s * 1000)))
}
