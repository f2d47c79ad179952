package safe

import (
	"fmt"
	"reflect"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Used by constructors to enforce required collaborators.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Recover turns a panic in the calling goroutine into an error stored in *errp
// and logs it. Use as: defer safe.Recover(log, &err, fields...).
func Recover(log *zap.Logger, errp *error, fields ...zap.Field) {
	r := recover()
	if r == nil {
		return
	}
	err := errs.ErrPanic(r)
	if log == nil {
		log = logger.L()
	}
	log.Error("panic recovered", append(fields, zap.Error(err), zap.Stack("stack"))...)
	if errp != nil {
		*errp = err
	}
}

// Go starts f in a new goroutine that recovers from panic,
// so that one failing task doesn't crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer Recover(logger.L(), nil, zap.String("task", name))
		f()
	}()
}
