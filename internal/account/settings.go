package account

import (
	"encoding/json"
	"fmt"
)

// SettingsVersion is the version written by EncodeSettings.
//
// History:
//
//	0 - free-form dictionary with "default_" prefixed keys
//	1 - fixed record, fields optional
//	2 - fixed record, every field populated
const SettingsVersion = 2

// Setting names accepted by Toggle.
const (
	SettingNotifyOnView   = "notify_on_view"
	SettingProtectContent = "protect_content"
	SettingShowForwardTag = "show_forward_tag"
)

// Settings are a user's preferences, fully resolved.
type Settings struct {
	// NotifyOnView sends the sender a notice whenever a share is opened.
	NotifyOnView bool `json:"notify_on_view"`
	// ProtectContent preselects "prevent resharing" in new flows.
	ProtectContent bool `json:"protect_content"`
	// ShowForwardTag preselects keeping attribution in new flows.
	ShowForwardTag bool `json:"show_forward_tag"`
}

// DefaultSettings returns the settings of a user who never changed anything.
func DefaultSettings() Settings {
	return Settings{
		NotifyOnView:   true,
		ProtectContent: false,
		ShowForwardTag: true,
	}
}

// Toggle flips the named setting.
func (s *Settings) Toggle(name string) error {
	switch name {
	case SettingNotifyOnView:
		s.NotifyOnView = !s.NotifyOnView
	case SettingProtectContent:
		s.ProtectContent = !s.ProtectContent
	case SettingShowForwardTag:
		s.ShowForwardTag = !s.ShowForwardTag
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

// settingsRecord is the persisted shape from version 1 onwards.
type settingsRecord struct {
	NotifyOnView   *bool `json:"notify_on_view,omitempty"`
	ProtectContent *bool `json:"protect_content,omitempty"`
	ShowForwardTag *bool `json:"show_forward_tag,omitempty"`
}

// LoadSettings decodes persisted settings of the given version and migrates
// them to SettingsVersion. migrated is true when the caller should persist
// the result so the migration does not run again.
func LoadSettings(raw []byte, version int) (s Settings, migrated bool, err error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if version > SettingsVersion {
		return Settings{}, false, fmt.Errorf("settings version %d is newer than supported %d", version, SettingsVersion)
	}

	var rec settingsRecord
	switch version {
	case 0:
		rec, err = migrateV0(raw)
	default:
		err = json.Unmarshal(raw, &rec)
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("decode settings v%d: %w", version, err)
	}

	return fillDefaults(rec), version < SettingsVersion, nil
}

// EncodeSettings returns the persisted form of s and its version.
func EncodeSettings(s Settings) ([]byte, int, error) {
	rec := settingsRecord{
		NotifyOnView:   &s.NotifyOnView,
		ProtectContent: &s.ProtectContent,
		ShowForwardTag: &s.ShowForwardTag,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("encode settings: %w", err)
	}
	return raw, SettingsVersion, nil
}

// migrateV0 maps the legacy dictionary onto the fixed record. Unknown keys
// are dropped; values of the wrong type are treated as absent.
func migrateV0(raw []byte) (settingsRecord, error) {
	var legacy map[string]any
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return settingsRecord{}, err
	}
	pick := func(keys ...string) *bool {
		for _, k := range keys {
			if b, ok := legacy[k].(bool); ok {
				return &b
			}
		}
		return nil
	}
	return settingsRecord{
		NotifyOnView:   pick("notify_on_view"),
		ProtectContent: pick("default_protected_content", "protect_content"),
		ShowForwardTag: pick("default_show_forward_tag", "show_forward_tag"),
	}, nil
}

func fillDefaults(rec settingsRecord) Settings {
	s := DefaultSettings()
	if rec.NotifyOnView != nil {
		s.NotifyOnView = *rec.NotifyOnView
	}
	if rec.ProtectContent != nil {
		s.ProtectContent = *rec.ProtectContent
	}
	if rec.ShowForwardTag != nil {
		s.ShowForwardTag = *rec.ShowForwardTag
	}
	return s
}
