package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts scalar ids and text fields of any JSON scalar type;
// numbers and booleans are kept in their literal form. null counts as
// absent.
func (t *RawTicket) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("ticket must be a JSON object: %w", err)
	}

	var err error
	if t.ID, err = scalar(fields["id"], "id"); err != nil {
		return err
	}
	if t.Subject, err = scalar(fields["subject"], "subject"); err != nil {
		return err
	}
	if t.Body, err = scalar(fields["body"], "body"); err != nil {
		return err
	}
	return nil
}

func scalar(raw json.RawMessage, field string) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("ticket %s: %w", field, err)
		}
		return &s, nil
	case '{', '[':
		return nil, fmt.Errorf("ticket %s must be a scalar", field)
	default:
		s := string(raw)
		return &s, nil
	}
}
