package device

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HostFeatures lists the SIMD features of the host CPU that executes the
// emulated lanes.
func HostFeatures() []string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		add := func(ok bool, name string) {
			if ok {
				feats = append(feats, name)
			}
		}
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			feats = append(feats, "fphp")
		}
		if cpu.ARM64.HasSVE {
			feats = append(feats, "sve")
		}
	}
	return feats
}
