package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their raw section from the modules map.
// Configure runs before Provision and only when a section exists.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules resolve defaults, open resources and register
// services on the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their configuration after Provision.
// Validate must not have side effects.
type Validator interface {
	Validate() error
}

// Starter modules begin background work once every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper modules release resources. Stop runs in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules apply a changed section without a restart. Reload runs
// on a started module; settings it cannot change are left as they are.
type Reloader interface {
	Reload(node *yaml.Node) error
}
