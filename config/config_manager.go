package config

import (
	"context"

	"github.com/davidbalbert/ospfd/sync"
)

// ConfigManager holds the running config. Services watch it with
// LastChange and AwaitChange.
type ConfigManager struct {
	*sync.Notifier[*Config]
}

func NewConfigManager(path string) (*ConfigManager, error) {
	conf, err := Load(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{sync.NewNotifier(conf)}, nil
}

func (c *ConfigManager) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (c *ConfigManager) UpdateConfig(conf *Config) error {
	err := conf.validate()
	if err != nil {
		return err
	}

	c.NotifyChange(conf.copy())

	return nil
}

// GetConfig returns a copy of the running config.
func (c *ConfigManager) GetConfig() *Config {
	conf, _ := c.LastChange()
	return conf.copy()
}
