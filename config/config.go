package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Debug    bool           `mapstructure:"debug"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// ChatConfig points at the external chat-completion backend that
// generates NPC dialogue.
type ChatConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GameConfig carries session tuning knobs.
type GameConfig struct {
	MaxPlayers    int           `mapstructure:"max_players"`
	DebounceDelay time.Duration `mapstructure:"debounce_delay"`
	PursuitTick   time.Duration `mapstructure:"pursuit_tick"`
	PursuerCount  int           `mapstructure:"pursuer_count"`
	CatchRadius   float64       `mapstructure:"catch_radius"`
}

type DatabaseConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver selects the persistence implementation: "gorm" or "sql".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":3001")
	viper.SetDefault("server.rpc_address", ":3002")
	viper.SetDefault("server.metrics_address", ":9090")
	viper.SetDefault("chat.model", "jllm")
	viper.SetDefault("chat.temperature", 0.8)
	viper.SetDefault("chat.max_tokens", 200)
	viper.SetDefault("chat.request_timeout", 30*time.Second)
	viper.SetDefault("game.max_players", 4)
	viper.SetDefault("game.debounce_delay", 3*time.Second)
	viper.SetDefault("game.pursuit_tick", 100*time.Millisecond)
	viper.SetDefault("game.pursuer_count", 3)
	viper.SetDefault("game.catch_radius", 40.0)
	viper.SetDefault("database.driver", "gorm")

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
