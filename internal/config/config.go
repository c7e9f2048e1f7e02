package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode              string        `mapstructure:"mode"`
	Port              int           `mapstructure:"port"`
	SignalURL         string        `mapstructure:"signal_url"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	SpeakerDebounce   time.Duration `mapstructure:"speaker_debounce"`
	DisplaySlots      int           `mapstructure:"display_slots"`
	ScreenShareSuffix string        `mapstructure:"screen_share_suffix"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	LogLevel          string        `mapstructure:"log_level"`
	VideoWidth        int           `mapstructure:"video_width"`
	VideoHeight       int           `mapstructure:"video_height"`
	AudioEnabled      bool          `mapstructure:"audio_enabled"`
	VideoEnabled      bool          `mapstructure:"video_enabled"`
	Name              string        `mapstructure:"name"`
	Room              string        `mapstructure:"room"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("join_timeout", "15s")
	v.SetDefault("speaker_debounce", "100ms")
	v.SetDefault("display_slots", 4)
	v.SetDefault("screen_share_suffix", " (screen)")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("log_level", "info")
	v.SetDefault("video_width", 640)
	v.SetDefault("video_height", 480)
	v.SetDefault("audio_enabled", true)
	v.SetDefault("video_enabled", true)
}

func flags(args []string) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("huddle", pflag.ContinueOnError)
	fs.String("name", "", "display name used for auto-join")
	fs.String("room", "", "room id used for auto-join")
	fs.Bool("mic", true, "join with microphone enabled")
	fs.Bool("video", true, "join with camera enabled")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load reads config/config.<CONFIG_ENV>.yaml, HUDDLE_* env overrides and args.
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	fs, err := flags(args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	_ = v.BindPFlag("name", fs.Lookup("name"))
	_ = v.BindPFlag("room", fs.Lookup("room"))
	_ = v.BindPFlag("audio_enabled", fs.Lookup("mic"))
	_ = v.BindPFlag("video_enabled", fs.Lookup("video"))

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signal: %s\n", cfg.Mode, cfg.Port, cfg.SignalURL)
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DisplaySlots < 1 {
		return nil, fmt.Errorf("display_slots must be positive, got %d", cfg.DisplaySlots)
	}
	cfg.v = v
	return &cfg, nil
}

// Watch calls onChange with the re-read config whenever the config file changes.
// Only settings that are safe to change at runtime should be applied by the callback.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err != nil {
			fmt.Printf("⚠️ Config reload failed (%s): %v\n", e.Name, err)
			return
		}
		onChange(next)
	})
	c.v.WatchConfig()
}
