package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port on which the administrative console listener is bound.
	ConsolePort int `mapstructure:"console_port"`
	// Port on which player connections are accepted.
	ClientPort int `mapstructure:"client_port"`
	// Start accepting players immediately instead of waiting for a console "listen".
	ListenOnStart bool `mapstructure:"listen_on_start"`
	// Maximum number of concurrent player connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Directory relative paths (sqlite file, PGN archive) are resolved against.
	DataDir string `mapstructure:"data_dir"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Either "sqlite" or "postgres".
		Engine string `mapstructure:"engine"`
		// Name of the sqlite file, relative to DataDir.
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on Host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database in Postgres.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to Name.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Voting struct {
		// Seconds of voting per ply for games created without an explicit interval.
		DefaultMoveInterval int `mapstructure:"default_move_interval"`
		// Upper bound on how long the event loop waits before draining the schedule.
		TickInterval time.Duration `mapstructure:"tick_interval"`
		// Whether the scheduler commits moves as soon as the server starts.
		ProcessOnStart bool `mapstructure:"process_on_start"`
	} `mapstructure:"voting"`

	Protocol struct {
		// Largest payload a peer may announce in a frame header.
		MaxFrameSize int `mapstructure:"max_frame_size"`
		// Deadline applied to every write to a peer.
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"protocol"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log every frame received from a peer.
		FrameLoggingEnabled bool `mapstructure:"frame_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "CROWDCHESS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "127.0.0.1")
	v.SetDefault("console_port", 5051)
	v.SetDefault("client_port", 5052)
	v.SetDefault("listen_on_start", false)
	v.SetDefault("max_connections", 256)
	v.SetDefault("data_dir", "data")
	v.SetDefault("logging.log_level", "info")
	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.filename", "crowdchess.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("voting.default_move_interval", 60)
	v.SetDefault("voting.tick_interval", 500*time.Millisecond)
	v.SetDefault("voting.process_on_start", true)
	v.SetDefault("protocol.max_frame_size", 64*1024)
	v.SetDefault("protocol.write_timeout", 5*time.Second)
	v.SetDefault("debugging.pprof_port", 6060)
}

// LoadConfig reads config.yaml from configPath, applies CROWDCHESS_* environment
// overrides, and returns the resulting Config. A missing config file is not an
// error; the defaults are used instead.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate rejects durations the event loop cannot work with.
func (c *Config) validate() error {
	if c.Voting.DefaultMoveInterval <= 0 {
		return fmt.Errorf("voting.default_move_interval must be positive, got %d", c.Voting.DefaultMoveInterval)
	}
	if c.Voting.TickInterval <= 0 {
		return fmt.Errorf("voting.tick_interval must be positive, got %v", c.Voting.TickInterval)
	}
	if c.Protocol.WriteTimeout <= 0 {
		return fmt.Errorf("protocol.write_timeout must be positive, got %v", c.Protocol.WriteTimeout)
	}
	return nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// QualifiedPath resolves name against DataDir unless it is already absolute.
func (c *Config) QualifiedPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// ConsoleAddress is the host:port of the administrative console listener.
func (c *Config) ConsoleAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.ConsolePort)
}

// ClientAddress is the host:port of the player listener.
func (c *Config) ClientAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.ClientPort)
}

// MoveInterval returns the default voting window as a Duration.
func (c *Config) MoveInterval() time.Duration {
	return time.Duration(c.Voting.DefaultMoveInterval) * time.Second
}
