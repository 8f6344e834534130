// Package registry defines the lifecycle contract of long-running agent services.
package registry

// Service is a component the agent starts on launch and stops on shutdown,
// such as the task scheduler or the outcome status publisher.
// Stop is called in reverse start order and only on services that started.
type Service interface {
	Start() error
	Stop() error
}
