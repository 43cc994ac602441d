package config

import "reflect"

// ChangedSections lists the top-level sections that differ between a and b,
// by their file key.
func ChangedSections(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	var out []string
	va, vb := reflect.ValueOf(*a), reflect.ValueOf(*b)
	t := va.Type()
	for i := 0; i < t.NumField(); i++ {
		if reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			continue
		}
		name := t.Field(i).Tag.Get("json")
		if name == "" {
			name = t.Field(i).Name
		}
		out = append(out, name)
	}
	return out
}

// RestartRequired reports whether the change touches settings that are only
// read at startup: the bot connection, storage, the operating timezone and
// the notifier channel.
func RestartRequired(a, b *Config) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := a.Telegram, b.Telegram
	ta.AdminUserIDs, tb.AdminUserIDs = nil, nil
	ta.CommandTimeout, tb.CommandTimeout = "", ""
	return !reflect.DeepEqual(ta, tb) ||
		!reflect.DeepEqual(a.Storage, b.Storage) ||
		a.Scheduler.Timezone != b.Scheduler.Timezone ||
		a.Notifier.Channel != b.Notifier.Channel
}
