package main

import "github.com/hermesagent/hermes/core"

// exitCodeFor maps a returned error onto the exit codes of spec §6.4:
// 0=success, 1=domain failure, 2=invalid arguments, 3=execution failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch core.KindOf(err) {
	case core.KindNotFound:
		return 1
	case core.KindInput:
		return 2
	default:
		return 3
	}
}
