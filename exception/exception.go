package exception

import (
	"os"
	"runtime/debug"
	"sync/atomic"

	"chaincore/logx"
)

var panicCount atomic.Uint64

// PanicCount returns the number of panics recovered by SafeGo wrappers.
func PanicCount() uint64 {
	return panicCount.Load()
}

func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicCount.Add(1)
				logx.Error("Panic in: ", name, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicCount.Add(1)
				logx.Error("Panic in: ", name, r, string(debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}
