// Package shaderjob runs inline Go closures as precompiled GPU compute kernels.
//
// # Overview
//
// Application code describes a per-element computation with an ordinary
// closure passed as the last argument of a launch call:
//
//	exec.For(1024).Run(a, b, scale, func(a []float32, b []float32, scale float32, id shaderjob.ID) {
//		b[id.X] = a[id.X] * scale
//	})
//
// The shaderjob command (cmd/shaderjob) discovers every such closure ahead of
// time, translates it into a WGSL kernel and writes a Go glue file next to it.
// Both are keyed by the source location of the call. At run time the
// [Executor] maps its caller's file and line back to that artifact, binds the
// arguments and dispatches the kernel without analysing the closure again.
//
// # Calling convention
//
// The closure is always the last argument. Its leading parameters pair
// positionally with the preceding arguments: []int32 and []float32 become
// storage buffers, int32 and float32 become uniform members. The trailing
// [ID] parameter receives the global invocation id.
//
// # Wiring
//
// Generated glue lives in its own package (shaderjobgen by default) and
// exposes a Register function:
//
//	reg := shaderjob.NewRegistry()
//	shaderjobgen.Register(reg)
//
//	dev, _ := native.NewFromProvider(provider)
//	exec, err := shaderjob.NewExecutor(shaderjob.Options{
//		Registry:  reg,
//		Loader:    shaderjob.DirLoader("shaderjobgen"),
//		Device:    dev,
//		Locations: ".shaderjob/registry.json",
//	})
//
// # Logging
//
// The runtime is silent by default. Call [SetLogger] to receive debug output.
package shaderjob
