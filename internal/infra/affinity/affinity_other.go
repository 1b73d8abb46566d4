//go:build !darwin && !linux

package affinity

func newPlatformFixer(Options, runFunc) Fixer {
	return unsupportedFixer{}
}
