package services

import (
	"github.com/mbocsi/qnob/bridge"
)

// ServiceManagerImpl wires the services to one coordinator and config store
type ServiceManagerImpl struct {
	coord *bridge.Coordinator
	store *ConfigStore

	services *ServiceContainer
}

func NewServiceManager(coord *bridge.Coordinator, store *ConfigStore, channels ChannelFactory) *ServiceManagerImpl {
	sm := &ServiceManagerImpl{coord: coord, store: store}
	sm.services = &ServiceContainer{
		State:     NewStateService(coord),
		Transport: NewTransportService(coord, store, channels),
		Device:    NewDeviceService(coord),
		Config:    NewConfigService(store),
	}
	return sm
}

// GetServices returns the service container
func (sm *ServiceManagerImpl) GetServices() *ServiceContainer {
	return sm.services
}

// Notifier exposes the coordinator's listener hub to presentation adapters.
func (sm *ServiceManagerImpl) Notifier() *bridge.Notifier {
	return sm.coord.Notifier
}
