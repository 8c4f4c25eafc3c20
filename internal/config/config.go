package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Redis   RedisConfig   `yaml:"redis"`
		Mongo   MongoConfig   `yaml:"mongo"`
		Account AccountConfig `yaml:"account"`
		Cache   CacheConfig   `yaml:"cache"`
	}

	ServerConfig struct {
		Listen string `yaml:"listen"`
		// Host is the station address clients dial.
		Host string `yaml:"host"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// KeyTTL bounds how long a persisted cipher-key table survives.
		KeyTTL time.Duration `yaml:"keyTTL"`
	}

	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	AccountConfig struct {
		MetaType  string `yaml:"metaType"`
		Network   uint8  `yaml:"network"`
		Algorithm string `yaml:"algorithm"`
	}

	CacheConfig struct {
		Addresses   int `yaml:"addresses"`
		Identifiers int `yaml:"identifiers"`
		CipherKeys  int `yaml:"cipherKeys"`
	}
)

func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads a YAML file and fills every empty field with its default.
// A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	c := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.setDefaults()
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "localhost:9090"
	}
	if c.Server.Host == "" {
		c.Server.Host = c.Server.Listen
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyTTL == 0 {
		c.Redis.KeyTTL = 7 * 24 * time.Hour
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "mydb"
	}
	if c.Account.MetaType == "" {
		c.Account.MetaType = "mkm"
	}
	if c.Account.Network == 0 {
		// MAIN, the legacy network id of a personal account
		c.Account.Network = 0x08
	}
	if c.Account.Algorithm == "" {
		c.Account.Algorithm = "AES"
	}
	if c.Cache.Addresses == 0 {
		c.Cache.Addresses = 4096
	}
	if c.Cache.Identifiers == 0 {
		c.Cache.Identifiers = 4096
	}
	if c.Cache.CipherKeys == 0 {
		c.Cache.CipherKeys = 1024
	}
}
