package shaderjob

import (
	"errors"
	"fmt"
)

// Runtime errors.
var (
	// ErrMissingArtifact is returned when no artifact is registered for the
	// calling source location. Regenerate with the shaderjob command.
	ErrMissingArtifact = errors.New("shaderjob: no shader for lambda")

	// ErrNoBinding is returned when the registry document knows the location
	// but the generated glue for its id was never registered.
	ErrNoBinding = errors.New("shaderjob: no binding registered")

	// ErrStaleBinding is returned when the registered glue was generated for
	// a different revision of the artifact than the registry document names.
	ErrStaleBinding = errors.New("shaderjob: stale binding")

	// ErrResourceLoad is returned when the kernel source cannot be loaded.
	ErrResourceLoad = errors.New("shaderjob: failed to load kernel")

	// ErrInvalidKernelArgs is returned when the arguments of a launch call do
	// not match the parameters the glue was generated for.
	ErrInvalidKernelArgs = errors.New("shaderjob: invalid kernel arguments")

	// ErrNoDevice is returned when an executor has neither a device nor the
	// CPU fallback enabled.
	ErrNoDevice = errors.New("shaderjob: no device")
)

// ArgError reports that argument index of artifact id has an unexpected type.
func ArgError(id, index int, got any) error {
	return fmt.Errorf("%w: artifact %d argument %d has type %T", ErrInvalidKernelArgs, id, index, got)
}
