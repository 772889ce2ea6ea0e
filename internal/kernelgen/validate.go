package kernelgen

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// CompileSPIRV compiles WGSL source to SPIR-V words.
func CompileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("kernelgen: compile: %w", err)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}

// Validate reports whether src is a valid kernel. Failures are diagnostics
// for the caller to log; they never stop generation.
func Validate(src string) error {
	_, err := CompileSPIRV(src)
	return err
}
