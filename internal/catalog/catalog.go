// Package catalog declares the note-taking application's preference domains.
//
// Keys and option identifiers are what devices already have on disk; treat
// any rename as a schema change that needs a migration.
package catalog

import (
	"strings"
	"time"

	"github.com/kalambet/notesprefs/internal/preference"
)

// Persistence keys.
const (
	KeyLayoutMode                = "layout_mode"
	KeyThemeMode                 = "theme_mode"
	KeyDarkThemeMode             = "dark_theme_mode"
	KeyColorScheme               = "color_scheme"
	KeySortMethod                = "sort_method"
	KeySortTagsMethod            = "sort_tags_method"
	KeySortNavdrawerNotebooks    = "sort_navdrawer_notebooks_method"
	KeyBackupStrategy            = "backup_strategy"
	KeyNoteDeletionTime          = "note_deletion_time"
	KeyDateFormat                = "date_format"
	KeyTimeFormat                = "time_format"
	KeyOpenMedia                 = "open_media"
	KeyShowDate                  = "show_date"
	KeyEditorFontSize            = "editor_font_size"
	KeyShowFabChangeMode         = "show_fab_change_mode"
	KeyGroupNotesWithoutNotebook = "group_notes_without_notebook"
	KeyMoveCheckedItems          = "move_checked_items"
	KeyCloudService              = "cloud_service"
	KeySyncMode                  = "sync_mode"
	KeyBackgroundSync            = "background_sync"
	KeyNewNotesSyncable          = "new_notes_syncable"
)

// DynamicColorPlatform is the first platform version with system-derived
// color schemes.
const DynamicColorPlatform = 31

// Night mode values understood by the UI toolkit.
const (
	NightFollowSystem = -1
	NightNo           = 1
	NightYes          = 2
)

const day = int64(24 * time.Hour / time.Second)

func opt(id, label string) preference.Option {
	return preference.Option{ID: id, Label: label}
}

func def(id, label string) preference.Option {
	return preference.Option{ID: id, Label: label, Default: true}
}

func yesNo(key string, yesDefault bool) preference.Domain {
	return preference.Domain{
		Key: key,
		Options: []preference.Option{
			{ID: "YES", Label: "yes", Default: yesDefault},
			{ID: "NO", Label: "no", Default: !yesDefault},
		},
	}
}

// sortOptions are shared by the tag and notebook sort domains. Neither ever
// declared a default; the first entry is what an unset value resolved to.
func sortOptions() []preference.Option {
	return []preference.Option{
		def("TITLE_ASC", "preferences_sort_method_title_asc"),
		opt("TITLE_DESC", "preferences_sort_method_title_desc"),
		opt("CREATION_ASC", "preferences_sort_method_created_asc"),
		opt("CREATION_DESC", "preferences_sort_method_created_desc"),
	}
}

func fontSize(id string, points int64) preference.Option {
	return opt(id, "preferences_font_size_"+strings.ToLower(id)).WithValue(points)
}

// Domains returns the full catalog in settings-screen order.
func Domains() []preference.Domain {
	themeDefault := def("SYSTEM", "preferences_theme_mode_system").WithValue(NightFollowSystem)
	black := opt("BLACK", "preferences_theme_dark_mode_black")
	black.Resource = "DarkBlack"

	scheme := func(id, label, style string, isDefault bool) preference.Option {
		return preference.Option{ID: id, Label: label, Resource: style, Default: isDefault}
	}
	dynamic := scheme("SYSTEM", "preferences_color_scheme_system", "System", false)
	dynamic.Requires = preference.Requirement{MinPlatformVersion: DynamicColorPlatform}

	pattern := func(id string, isDefault bool) preference.Option {
		return preference.Option{ID: id, Label: id, Resource: id, Default: isDefault}
	}

	return []preference.Domain{
		{Key: KeyLayoutMode, Name: "Layout mode", Options: []preference.Option{
			def("GRID", "preferences_layout_mode_grid"),
			opt("LIST", "preferences_layout_mode_list"),
		}},
		{Key: KeyThemeMode, Name: "Theme", Options: []preference.Option{
			themeDefault,
			opt("DARK", "preferences_theme_mode_dark").WithValue(NightYes),
			opt("LIGHT", "preferences_theme_mode_light").WithValue(NightNo),
		}},
		{Key: KeyDarkThemeMode, Name: "Dark theme", Options: []preference.Option{
			def("STANDARD", "preferences_theme_dark_mode_standard"),
			black,
		}},
		{Key: KeyColorScheme, Name: "Color scheme", Options: []preference.Option{
			scheme("BLUE", "preferences_color_scheme_blue", "Blue", true),
			scheme("GREEN", "preferences_color_scheme_green", "Green", false),
			scheme("PINK", "preferences_color_scheme_pink", "Pink", false),
			scheme("YELLOW", "preferences_color_scheme_orange", "Orange", false),
			scheme("RED", "preferences_color_scheme_purple", "Purple", false),
			dynamic,
		}},
		{Key: KeySortMethod, Name: "Sort notes", Options: []preference.Option{
			opt("TITLE_ASC", "preferences_sort_method_title_asc"),
			opt("TITLE_DESC", "preferences_sort_method_title_desc"),
			opt("CREATION_ASC", "preferences_sort_method_created_asc"),
			opt("CREATION_DESC", "preferences_sort_method_created_desc"),
			opt("MODIFIED_ASC", "preferences_sort_method_modified_asc"),
			def("MODIFIED_DESC", "preferences_sort_method_modified_desc"),
		}},
		{Key: KeySortTagsMethod, Name: "Sort tags", Options: sortOptions()},
		{Key: KeySortNavdrawerNotebooks, Name: "Sort notebooks", Options: sortOptions()},
		{Key: KeyBackupStrategy, Name: "Backup strategy", Options: []preference.Option{
			def("INCLUDE_FILES", "preferences_backup_strategy_include_files"),
			opt("KEEP_INFO", "preferences_backup_strategy_keep_info"),
			opt("KEEP_NOTHING", "preferences_backup_strategy_keep_nothing"),
		}},
		{Key: KeyNoteDeletionTime, Name: "Empty bin after", Options: []preference.Option{
			def("WEEK", "preferences_note_deletion_time_week").WithValue(7 * day),
			opt("TWO_WEEKS", "preferences_note_deletion_time_two_weeks").WithValue(14 * day),
			opt("MONTH", "preferences_note_deletion_time_month").WithValue(30 * day),
			opt("NEVER", "never").WithValue(-1),
			opt("INSTANTLY", "preferences_note_deletion_time_instantly").WithValue(0),
		}},
		{Key: KeyDateFormat, Name: "Date format", Options: []preference.Option{
			pattern("MMMM_d_yyyy", true),
			pattern("d_MMMM_yyyy", false),
			pattern("MM_d_yyyy", false),
			pattern("d_MM_yyyy", false),
			pattern("yyyy_MM_dd", false),
		}},
		{Key: KeyTimeFormat, Name: "Time format", Options: []preference.Option{
			pattern("HH_mm", true),
			pattern("hh_mm", false),
		}},
		{Key: KeyOpenMedia, Name: "Open media in", Options: []preference.Option{
			def("INTERNAL", "preferences_open_media_in_internal"),
			opt("EXTERNAL", "preferences_open_media_in_external"),
		}},
		withName(yesNo(KeyShowDate, true), "Show date"),
		{Key: KeyEditorFontSize, Name: "Editor font size", Options: []preference.Option{
			// -1 keeps the body text style's own size.
			def("DEFAULT", "preferences_font_size_default").WithValue(-1),
			fontSize("TEN", 10),
			fontSize("FIFTEEN", 15),
			fontSize("TWENTY", 20),
			fontSize("TWENTYFIVE", 25),
			fontSize("THIRTY", 30),
			fontSize("THIRTYFIVE", 35),
			fontSize("FORTY", 40),
			fontSize("FORTYFIVE", 45),
			fontSize("FIFTY", 50),
		}},
		{Key: KeyShowFabChangeMode, Name: "Layout switch", Options: []preference.Option{
			def("FAB", "preferences_fab"),
			opt("TOPBAR", "preferences_top_bar"),
		}},
		withName(yesNo(KeyGroupNotesWithoutNotebook, false), "Group notes without notebook"),
		withName(yesNo(KeyMoveCheckedItems, true), "Move checked items"),
		{Key: KeyCloudService, Name: "Cloud service", Options: []preference.Option{
			def("DISABLED", "preferences_cloud_service_disabled"),
			opt("NEXTCLOUD", "preferences_cloud_service_nextcloud"),
		}},
		{Key: KeySyncMode, Name: "Sync on", Options: []preference.Option{
			def("WIFI", "preferences_sync_on_wifi"),
			opt("ALWAYS", "preferences_sync_on_wifi_data"),
		}},
		{Key: KeyBackgroundSync, Name: "Background sync", Options: []preference.Option{
			def("ENABLED", "preferences_background_sync_enabled"),
			opt("DISABLED", "preferences_background_sync_disabled"),
		}},
		withName(yesNo(KeyNewNotesSyncable, true), "New notes syncable"),
	}
}

func withName(d preference.Domain, name string) preference.Domain {
	d.Name = name
	return d
}

var registry = preference.MustRegistry(Domains()...)

// Registry returns the validated registry of the catalog.
func Registry() *preference.Registry {
	return registry
}
