package core

import "strings"

// ModuleID names a module within its namespace, e.g. "client.telegram".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal contract every module satisfies. Configuration,
// start and stop are opted into through the lifecycle interfaces.
type Module interface {
	ModuleInfo() ModuleInfo
}
