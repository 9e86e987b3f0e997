// Package config loads, normalizes, and validates imagecleanse configuration.
//
// Settings come from an optional TOML file and are then overridden by the
// environment variables the scanning service has always honoured
// (CLEANSE_MEDIA_ROOT, CLEANSE_IGNORE_FOLDERS, BLUR_THRESHOLD, ...). Validation
// treats an unusable media root as fatal so misconfiguration surfaces at
// startup instead of as a silent empty scan every cycle.
package config
