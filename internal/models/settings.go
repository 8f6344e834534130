package models

// Settings is the persisted user configuration. The zero value is the default.
type Settings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	Enabled *bool
	URL     *string
}

// Merge returns current with the non-nil fields of u applied.
func (s Settings) Merge(u SettingsUpdate) Settings {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.URL != nil {
		s.URL = *u.URL
	}
	return s
}

// SetEnabled builds an update that changes only the enabled flag.
func SetEnabled(v bool) SettingsUpdate {
	return SettingsUpdate{Enabled: &v}
}

// SetURL builds an update that changes only the destination URL.
func SetURL(v string) SettingsUpdate {
	return SettingsUpdate{URL: &v}
}
