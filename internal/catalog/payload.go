package catalog

import "github.com/kalambet/notesprefs/internal/preference"

// DeletionDays converts a note_deletion_time option to whole days.
// NEVER stays -1 and INSTANTLY is 0.
func DeletionDays(o preference.Option) int64 {
	if o.Value == -1 {
		return -1
	}
	return o.Value / day
}

// NightMode returns the toolkit night mode of a theme_mode option.
func NightMode(o preference.Option) int {
	if !o.HasValue {
		return NightFollowSystem
	}
	return int(o.Value)
}

// FontPoints returns the editor font size in points, or 0 when the option
// keeps the default text style.
func FontPoints(o preference.Option) int {
	if !o.HasValue || o.Value < 0 {
		return 0
	}
	return int(o.Value)
}
