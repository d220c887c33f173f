package services

import (
	"strings"
	"sync"

	"github.com/mbocsi/qnob/config"
)

// ConfigStore is the in-memory copy of the configuration file. Edits are
// validated and written through to disk.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	cfg  config.Config
}

func NewConfigStore(path string, cfg config.Config) *ConfigStore {
	return &ConfigStore{path: path, cfg: cfg}
}

func (s *ConfigStore) Get() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to a copy of the configuration, validates it and saves it.
func (s *ConfigStore) Update(fn func(*config.Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if s.path != "" {
		if err := config.Save(s.path, next); err != nil {
			return err
		}
	}
	s.cfg = next
	return nil
}

// ConfigServiceImpl implements ConfigService
type ConfigServiceImpl struct {
	store *ConfigStore
}

func NewConfigService(store *ConfigStore) ConfigService {
	return &ConfigServiceImpl{store: store}
}

// GetConfig returns the configuration with the broker password blanked.
func (cs *ConfigServiceImpl) GetConfig() config.Config {
	cfg := cs.store.Get()
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "********"
	}
	return cfg
}

// UpdateMQTT validates operator-entered broker settings and persists them.
// An empty password keeps the stored one.
func (cs *ConfigServiceImpl) UpdateMQTT(req MQTTRequest) error {
	port, err := config.ParsePort(req.Port)
	if err != nil {
		return invalidInput(err.Error(), err)
	}
	m := config.MQTT{
		Broker:   strings.TrimSpace(req.Broker),
		Port:     port,
		Username: req.Username,
		Password: req.Password,
	}
	if err := m.Validate(); err != nil {
		return invalidInput(err.Error(), err)
	}

	err = cs.store.Update(func(c *config.Config) {
		m.SenderTag = c.MQTT.SenderTag
		if m.Password == "" {
			m.Password = c.MQTT.Password
		}
		c.MQTT = m
	})
	if err != nil {
		return ServiceError{Code: ErrCodeInternal, Message: "Failed to save configuration", Cause: err}
	}
	return nil
}
