package mexico

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Fatal matches any error this package considers fatal to the process
// group: spec.md §4.10/§7 classify every runtime error this way —
// there is no local recovery, only an abort.
var Fatal = errors.E(errors.Fatal)

// ConfigError reports a missing configuration key, a value of the
// wrong kind, or an unknown strategy name (spec.md §7 "configuration
// error").
func ConfigError(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, errors.Invalid, fmt.Errorf("config: "+format, args...))
}

// TopologyError reports an out-of-range or empty worker set (spec.md
// §7 "topology error").
func TopologyError(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, errors.Invalid, fmt.Errorf("topology: "+format, args...))
}

// RoutingError reports a routing-table entry whose target rank or
// offset is out of range. exec.Instance's routing validation builds it
// on every Exec call for an entry naming a rank outside the group;
// it is not gated on any debug setting.
func RoutingError(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, errors.Invalid, fmt.Errorf("routing: "+format, args...))
}

// TransportError wraps an error surfaced by the underlying transport
// primitive (a dial failure, an RPC error that retry could not
// recover, a collective primitive returning early).
func TransportError(cause error) error {
	return errors.E(errors.Fatal, errors.Net, cause)
}

// ResourceError reports an allocation failure (scratch growth, window
// exposure, symmetric heap, distributed array).
func ResourceError(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, fmt.Errorf("resource: "+format, args...))
}
