package observability

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// It must be deferred directly. The panic is not re-raised.
//
//	func (s *Scheduler) expire() {
//	    defer observability.RecoverPanic(s.log, "subscription expiry")
//	    ...
//	}
func RecoverPanic(log logrus.FieldLogger, where string) {
	if r := recover(); r != nil {
		log.WithFields(logrus.Fields{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("panic recovered")
	}
}
