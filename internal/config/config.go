package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"Lantern-Tales/server/internal/content"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Save     SaveConfig     `yaml:"save"`
	Progress ProgressConfig `yaml:"progress"`
	Scenes   ScenesConfig   `yaml:"scenes"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Save backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

type SaveConfig struct {
	Backend string `yaml:"backend"`
	Slot    string `yaml:"slot"`
	Dir     string `yaml:"dir"`
}

// Engine modes.
const (
	ModeDevelopment = "development"
	ModeRelease     = "release"
)

type ProgressConfig struct {
	TotalLevels    int    `yaml:"total_levels"`
	TotalChapters  int    `yaml:"total_chapters"`
	ChapterEndings []int  `yaml:"chapter_endings"`
	Mode           string `yaml:"mode"`
}

type ScenesConfig struct {
	Start     string         `yaml:"start"`
	Hub       string         `yaml:"hub"`
	Dialog    string         `yaml:"dialog"`
	Cinematic string         `yaml:"cinematic"`
	Loading   string         `yaml:"loading"`
	Levels    map[int]string `yaml:"levels"`
}

type QueueConfig struct {
	MaxQueueSize int `yaml:"max_queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when a field is left empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MySQL: MySQLConfig{
				Host:            "localhost",
				Port:            3306,
				Username:        "root",
				Database:        "lantern_tales",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				PoolSize:  10,
				KeyPrefix: "progress:slot:",
			},
			SQLite: SQLiteConfig{Path: "data/progress.db"},
		},
		Save: SaveConfig{
			Backend: BackendFile,
			Slot:    "default",
			Dir:     "data/saves",
		},
		Progress: ProgressConfig{
			TotalLevels:    3,
			TotalChapters:  1,
			ChapterEndings: []int{10003},
			Mode:           ModeDevelopment,
		},
		Scenes: ScenesConfig{
			Start:     "StartScene",
			Hub:       "LevelSelect",
			Dialog:    "DialogScene",
			Cinematic: "CinematicScene",
			Loading:   "LoadingScene",
			Levels: map[int]string{
				1: "Level_1",
				2: "Level_2",
				3: "Level_Boss",
			},
		},
		Queue: QueueConfig{MaxQueueSize: 100},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if slot := os.Getenv("LANTERN_SAVE_SLOT"); slot != "" {
		cfg.Save.Slot = slot
	}
	if backend := os.Getenv("LANTERN_SAVE_BACKEND"); backend != "" {
		cfg.Save.Backend = backend
	}
	if mode := os.Getenv("LANTERN_MODE"); mode != "" {
		cfg.Progress.Mode = mode
	}
	if pw := os.Getenv("MYSQL_PASSWORD"); pw != "" {
		cfg.Database.MySQL.Password = pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Database.Redis.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	c.Save.Backend = strings.ToLower(c.Save.Backend)
	switch c.Save.Backend {
	case BackendFile, BackendSQLite, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("unknown save backend %q", c.Save.Backend)
	}
	if c.Save.Slot == "" {
		return fmt.Errorf("save slot must not be empty")
	}
	if c.Progress.TotalLevels < 1 || c.Progress.TotalLevels > 999 {
		return fmt.Errorf("total_levels must be between 1 and 999, got %d", c.Progress.TotalLevels)
	}
	if c.Progress.TotalChapters < 1 || c.Progress.TotalChapters > 999 {
		return fmt.Errorf("total_chapters must be between 1 and 999, got %d", c.Progress.TotalChapters)
	}
	for _, id := range c.Progress.ChapterEndings {
		cat, n := content.OwnerOf(id)
		if cat != content.Cinematic || n < 1 || n > c.Progress.TotalLevels {
			return fmt.Errorf("chapter_endings: %d is not a level cinematic of levels 1..%d", id, c.Progress.TotalLevels)
		}
	}
	switch c.Progress.Mode {
	case ModeDevelopment, ModeRelease:
	default:
		return fmt.Errorf("unknown mode %q", c.Progress.Mode)
	}
	return nil
}

// Development reports whether invariant violations should be logged loudly.
func (p ProgressConfig) Development() bool {
	return p.Mode != ModeRelease
}
