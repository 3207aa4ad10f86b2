package main

import (
	"scenecast/internal/config"
	"scenecast/internal/jobs"
)

// commandContext lazily loads configuration and opens the job store so
// commands that need neither stay cheap.
type commandContext struct {
	configFlag *string

	cfg   *config.Config
	store *jobs.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureStore() (*jobs.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
