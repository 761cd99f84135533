package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

var (
	registry   = make(map[string]ModuleInfo)
	registryMu sync.RWMutex
)

// RegisterModule records a module so it can be loaded by ID. It panics on
// an empty ID, a nil constructor or a duplicate registration. Call it from
// init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	id := string(info.ID)
	if _, exists := registry[id]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", id))
	}
	registry[id] = info
}

// GetModule returns the ModuleInfo for id.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[id]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return filterModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace returns the modules whose ID namespace equals ns,
// so "store" matches "store.sqlite".
func GetModulesByNamespace(ns string) []ModuleInfo {
	return filterModules(func(info ModuleInfo) bool {
		return info.ID.Namespace() == ns && string(info.ID) != ns
	})
}

func filterModules(keep func(ModuleInfo) bool) []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []ModuleInfo
	for _, info := range registry {
		if keep(info) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ModuleInfo)
}
