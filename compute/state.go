package compute

// State is the lifecycle stage of a ResourceSet.
//
//	Uninitialized -> ResourcesCreated -> Ready -> (Dispatching -> Idle)* -> Destroyed
type State int32

const (
	StateUninitialized State = iota
	StateResourcesCreated
	StateReady
	StateDispatching
	StateIdle
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResourcesCreated:
		return "resources-created"
	case StateReady:
		return "ready"
	case StateDispatching:
		return "dispatching"
	case StateIdle:
		return "idle"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
