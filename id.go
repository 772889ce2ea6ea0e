package shaderjob

// ID is the global invocation id of one kernel thread. It is the trailing
// parameter of every job closure and maps to the WGSL builtin
// global_invocation_id.
type ID struct {
	X, Y, Z uint32
}
