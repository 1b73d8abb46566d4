//go:build darwin

package affinity

func newPlatformFixer(_ Options, run runFunc) Fixer {
	return &commandFixer{
		tool:   "taskpolicy",
		apply:  func(pid int) []string { return taskpolicyArgs(pid, true) },
		revert: func(pid int) []string { return taskpolicyArgs(pid, false) },
		run:    run,
	}
}
