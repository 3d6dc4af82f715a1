package core

import (
	"cartable/internal/eventbus"
	"cartable/internal/services/notify"
	"cartable/internal/services/scheduler"
	"cartable/internal/statestore"
	"cartable/internal/storage"
)

// Services is the capability set handed to plugins. Fields may be nil when
// the corresponding service is disabled; plugins must tolerate that.
type Services struct {
	Bus       eventbus.Bus
	Scheduler *scheduler.Service
	Notifier  *notify.Service
	State     *statestore.Store
	Store     storage.Store
}
