package constants

// Names under which agent services are registered.
const (
	StatusServiceName    = "status"
	SchedulerServiceName = "scheduler"
)
