package chat

import "encoding/json"

// Settings is the room configuration blob. Keys this package does not know
// about are kept and written back unchanged.
type Settings struct {
	Locked          bool   `json:"locked"`
	ExpiresIn       int64  `json:"expires_in"`
	PinnedMessageId string `json:"pinned_message_id,omitempty"`
	InviteCode      string `json:"invite_code,omitempty"`
	Name            string `json:"name,omitempty"`
	Icon            string `json:"icon,omitempty"`

	extra map[string]json.RawMessage
}

type plainSettings Settings

var knownSettingsKeys = []string{
	"locked",
	"expires_in",
	"pinned_message_id",
	"invite_code",
	"name",
	"icon",
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var p plainSettings
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	for _, k := range knownSettingsKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		p.extra = raw
	}

	*s = Settings(p)
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(plainSettings(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+len(knownSettingsKeys))
	for k, v := range s.extra {
		merged[k] = v
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}

	return json.Marshal(merged)
}

// Extra returns the raw value of a key this package does not model.
func (s Settings) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extra[key]
	return v, ok
}

// SettingsPatch holds the fields a settings update may change. Nil fields
// are left as they are.
type SettingsPatch struct {
	Locked          *bool   `json:"locked,omitempty"`
	ExpiresIn       *int64  `json:"expires_in,omitempty"`
	PinnedMessageId *string `json:"pinned_message_id,omitempty"`
	Name            *string `json:"name,omitempty"`
	Icon            *string `json:"icon,omitempty"`
}

func (p SettingsPatch) Empty() bool {
	return p.Locked == nil && p.ExpiresIn == nil && p.PinnedMessageId == nil && p.Name == nil && p.Icon == nil
}
