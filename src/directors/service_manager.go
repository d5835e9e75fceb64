package directors

import (
	"sync"

	"go.uber.org/zap"

	"mediatorpro/src/engine"
	"mediatorpro/src/settings"
)

type ServiceManager struct {
	Database        *engine.Database
	MatterService   *MatterService
	CaseFileService *CaseFileService
	TimelineService *TimelineService
	TaskService     *TaskService
	logger          *zap.SugaredLogger
}

// Private instance and mutex for thread safety
var (
	instance *ServiceManager
	once     sync.Once
	mu       sync.RWMutex
)

// GetServiceManager returns the singleton instance of ServiceManager
func GetServiceManager() *ServiceManager {
	mu.RLock()
	defer mu.RUnlock()

	if instance == nil {
		// If someone tries to get the instance before initialization,
		// return a basic empty instance
		return &ServiceManager{}
	}
	return instance
}

// InitServiceManager builds the services over db and stores them in the
// singleton. Later calls return the first instance.
func InitServiceManager(db *engine.Database, args *settings.Arguments, logger *zap.SugaredLogger) *ServiceManager {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		instance = NewServiceManager(db, args, logger)
		if logger != nil {
			logger.Info("ServiceManager singleton initialized")
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// NewServiceManager wires the services without touching the singleton.
func NewServiceManager(db *engine.Database, args *settings.Arguments, logger *zap.SugaredLogger) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeline := NewTimelineService(db, logger)
	return &ServiceManager{
		Database:        db,
		MatterService:   NewMatterService(db, timeline, args, logger),
		CaseFileService: NewCaseFileService(db, logger),
		TimelineService: timeline,
		TaskService:     NewTaskService(db, logger),
		logger:          logger,
	}
}

// ResetServiceManager is useful for testing - it resets the singleton
func ResetServiceManager() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}
