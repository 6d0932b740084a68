package config

import (
	"os"
	"strings"
)

// EnvPrefix prefixes every droidbug environment variable.
const EnvPrefix = "DROIDBUG_"

// EnvLoader finds configuration in environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "DROIDBUG_")
	mapping map[string]string // Env var -> config path
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "DROIDBUG_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
		environ: os.Environ,
	}
}

// defaultEnvMapping returns the variables whose names do not follow the
// SECTION_SETTING_NAME form.
func defaultEnvMapping() map[string]string {
	return map[string]string{
		"DROIDBUG_LOG":      "log.level",
		"DROIDBUG_SCENARIO": "backend.scenario",
	}
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// Load returns the settings found in the environment, keyed by config path.
// Empty values count as set.
func (l *EnvLoader) Load() map[string]string {
	settings := make(map[string]string)
	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if path, ok := l.mapping[name]; ok {
			settings[path] = value
			continue
		}
		if path := l.envToPath(name); path != "" {
			settings[path] = value
		}
	}
	return settings
}

// envToPath converts DROIDBUG_DISPLAY_EXPANDABLE_PRIMITIVES to
// display.expandablePrimitives. Names without a setting part map to "".
func (l *EnvLoader) envToPath(env string) string {
	parts := strings.Split(strings.TrimPrefix(env, l.prefix), "_")
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}

	setting := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		if len(part) > 0 {
			setting += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return strings.ToLower(parts[0]) + "." + setting
}
