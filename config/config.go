package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	DB         DBConfig         `toml:"database"`
	Hook       HookConfig       `toml:"hook"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Moderation ModerationConfig `toml:"moderation"`
	Lists      ListsConfig      `toml:"lists"`
	Format     FormatConfig     `toml:"format"`
	Names      NamesConfig      `toml:"names"`
	Strikes    StrikesConfig    `toml:"strikes"`
	Notify     NotifyConfig     `toml:"notify"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

func (l *LogLevel) UnmarshalText(text []byte) error {
	v := string(text)
	switch LogLevel(v) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		*l = LogLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid log.level: %q (must be debug, info, warn, error)", v)
	}
}

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogConfig controls the process log level and, per deny reason ID
// (e.g. "FLOOD"), the level used when a message is rejected.
type LogConfig struct {
	Level           LogLevel            `toml:"level"`
	RejectionLevels map[string]LogLevel `toml:"rejection_levels"`
}

type DBConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// HookConfig describes an external command run when a sender is auto-muted.
// Args may contain the {sender}, {reason} and {duration} placeholders.
type HookConfig struct {
	ExecutablePath string        `toml:"executable_path"`
	Args           []string      `toml:"args"`
	Timeout        time.Duration `toml:"timeout"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// ModerationConfig holds the thresholds and switches of the decision engine.
type ModerationConfig struct {
	MaxCapsLength         int      `toml:"max_caps_length"`
	MaxCapsPercent        int      `toml:"max_caps_percent"`
	SecondsBetweenMsg     int      `toml:"seconds_between_msg"`
	SecondsBetweenSameMsg int      `toml:"seconds_between_same_msg"`
	URLsPrevention        bool     `toml:"urls_prevention"`
	IPsPrevention         bool     `toml:"ips_prevention"`
	LeetFilter            bool     `toml:"leet_filter"`
	RecognizedTLDs        []string `toml:"recognized_tlds"`
}

const (
	DefaultMaxCapsLength         = 6
	DefaultMaxCapsPercent        = 50
	DefaultSecondsBetweenMsg     = 2
	DefaultSecondsBetweenSameMsg = 30
)

// FloodWindow is the minimum interval between two messages of one sender.
func (m ModerationConfig) FloodWindow() time.Duration {
	return time.Duration(m.SecondsBetweenMsg) * time.Second
}

// SpamWindow is how long a message body is remembered per sender.
func (m ModerationConfig) SpamWindow() time.Duration {
	return time.Duration(m.SecondsBetweenSameMsg) * time.Second
}

// Sanitize replaces out-of-range thresholds with their documented defaults.
// Each replacement is reported as a warning; none of them is fatal.
func (m *ModerationConfig) Sanitize() []error {
	var warnings []error
	if m.MaxCapsLength < 0 {
		warnings = append(warnings, fmt.Errorf("moderation.max_caps_length %d is negative, using %d", m.MaxCapsLength, DefaultMaxCapsLength))
		m.MaxCapsLength = DefaultMaxCapsLength
	}
	if m.MaxCapsPercent < 0 || m.MaxCapsPercent > 100 {
		warnings = append(warnings, fmt.Errorf("moderation.max_caps_percent %d is outside [0..100], using %d", m.MaxCapsPercent, DefaultMaxCapsPercent))
		m.MaxCapsPercent = DefaultMaxCapsPercent
	}
	if m.SecondsBetweenMsg < 0 {
		warnings = append(warnings, fmt.Errorf("moderation.seconds_between_msg %d is negative, using %d", m.SecondsBetweenMsg, DefaultSecondsBetweenMsg))
		m.SecondsBetweenMsg = DefaultSecondsBetweenMsg
	}
	if m.SecondsBetweenSameMsg < 0 {
		warnings = append(warnings, fmt.Errorf("moderation.seconds_between_same_msg %d is negative, using %d", m.SecondsBetweenSameMsg, DefaultSecondsBetweenSameMsg))
		m.SecondsBetweenSameMsg = DefaultSecondsBetweenSameMsg
	}
	return warnings
}

// ListsConfig holds the operator-edited lists. Entries are lower-cased and
// validated one by one when the engine loads them.
type ListsConfig struct {
	AllowedDomains    []string `toml:"allowed_domains"`
	URLsWhitelist     []string `toml:"urls_whitelist"`
	IPsWhitelist      []string `toml:"ips_whitelist"`
	WordsBlacklist    []string `toml:"words_blacklist"`
	MessagesWhitelist []string `toml:"messages_whitelist"`
}

// FormatConfig describes formatting codes. StripPattern matches the codes
// removed before the blank-message check and denied by the FORMAT check;
// the highlight markers wrap the offending text in rendered denials.
type FormatConfig struct {
	StripPattern   string `toml:"strip_pattern"`
	HighlightOpen  string `toml:"highlight_open"`
	HighlightClose string `toml:"highlight_close"`
}

type NamesConfig struct {
	CacheSize int           `toml:"cache_size"`
	TTL       time.Duration `toml:"ttl"`
}

type StrikesConfig struct {
	Enabled          bool          `toml:"enabled"`
	MaxStrikes       int           `toml:"max_strikes"`
	StrikeWindow     time.Duration `toml:"strike_window"`
	MuteDuration     time.Duration `toml:"mute_duration"`
	CacheSize        int           `toml:"cache_size"`
	CooldownDuration time.Duration `toml:"cooldown_duration"`
	ExcludeReasons   []string      `toml:"exclude_reasons"`
}

// NotifyConfig limits how often a denied sender is told about it.
// A zero rate disables the limit.
type NotifyConfig struct {
	Rate      float64 `toml:"rate"`
	Burst     int     `toml:"burst"`
	CacheSize int     `toml:"cache_size"`
}

const DefaultStripPattern = `(?i)[&§][0-9a-fk-or]`

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: InfoLevel,
		},
		DB: DBConfig{
			Path: "./chatguard-db",
		},
		Hook: HookConfig{
			Timeout: 30 * time.Second,
		},
		Moderation: ModerationConfig{
			MaxCapsLength:         DefaultMaxCapsLength,
			MaxCapsPercent:        DefaultMaxCapsPercent,
			SecondsBetweenMsg:     DefaultSecondsBetweenMsg,
			SecondsBetweenSameMsg: DefaultSecondsBetweenSameMsg,
			URLsPrevention:        true,
			IPsPrevention:         true,
			LeetFilter:            true,
		},
		Format: FormatConfig{
			StripPattern:   DefaultStripPattern,
			HighlightOpen:  "[",
			HighlightClose: "]",
		},
		Names: NamesConfig{
			CacheSize: 4096,
			TTL:       30 * time.Minute,
		},
		Strikes: StrikesConfig{
			MaxStrikes:       5,
			StrikeWindow:     10 * time.Minute,
			MuteDuration:     15 * time.Minute,
			CacheSize:        10000,
			CooldownDuration: time.Minute,
		},
		Notify: NotifyConfig{
			Rate:      0.5,
			Burst:     2,
			CacheSize: 10000,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) validate() error {
	// --- [database] ---
	if c.DB.Path == "" && !c.DB.InMemory {
		return errors.New("database.path must be set unless database.in_memory is true")
	}

	// --- [hook] ---
	if c.Hook.ExecutablePath != "" && c.Hook.Timeout <= 0 {
		return errors.New("hook.timeout must be a positive duration when hook.executable_path is set")
	}

	// --- [format] ---
	if c.Format.StripPattern != "" {
		if _, err := regexp.Compile(c.Format.StripPattern); err != nil {
			return fmt.Errorf("format.strip_pattern is not a valid regexp: %w", err)
		}
	}

	// --- [names] ---
	if c.Names.CacheSize <= 0 {
		return errors.New("names.cache_size must be positive")
	}
	if c.Names.TTL <= 0 {
		return errors.New("names.ttl must be a positive duration")
	}

	// --- [strikes] ---
	st := c.Strikes
	if st.Enabled {
		if st.MaxStrikes <= 0 {
			return errors.New("strikes.max_strikes must be > 0")
		}
		if st.StrikeWindow <= 0 {
			return errors.New("strikes.strike_window must be a positive duration")
		}
		if st.MuteDuration <= 0 {
			return errors.New("strikes.mute_duration must be a positive duration")
		}
		if st.CacheSize <= 0 {
			return errors.New("strikes.cache_size must be > 0")
		}
		if st.CooldownDuration <= 0 {
			return errors.New("strikes.cooldown_duration must be a positive duration")
		}
	}

	// --- [notify] ---
	if c.Notify.Rate < 0 {
		return errors.New("notify.rate must not be negative")
	}
	if c.Notify.Rate > 0 && c.Notify.Burst <= 0 {
		return errors.New("notify.burst must be > 0 when notify.rate is set")
	}

	return nil
}

func Load(path string, useDefaults bool) (*Config, bool, error) {
	cfg := defaultConfig()
	defaultsUsed := false

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if useDefaults {
				defaultsUsed = true
				if err := cfg.validate(); err != nil {
					return nil, true, err
				}
				return cfg, defaultsUsed, nil
			}
			return nil, false, fmt.Errorf("config file not found at %s", path)
		}
		return nil, false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	for _, w := range cfg.Moderation.Sanitize() {
		slog.Warn("Invalid moderation setting replaced by default", "path", path, "warning", w)
	}

	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, defaultsUsed, nil
}
