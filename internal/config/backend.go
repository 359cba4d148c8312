package config

// ConfigBackend abstracts platform-specific storage of daemon settings.
// macOS uses UserDefaults (via `defaults` CLI); elsewhere an XDG JSON file.
// Missing keys report ok == false rather than an error.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
