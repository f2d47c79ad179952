package safe

import (
	"errors"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecover_CapturesPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(zap.NewNop(), &err)
		panic("boom")
	}
	err := run()
	assert.True(t, errors.Is(err, errs.ErrInternal))
}

func TestRecover_NoPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(zap.NewNop(), &err)
		return nil
	}
	assert.NoError(t, run())
}

func TestGo_DoesNotCrash(t *testing.T) {
	done := make(chan struct{})
	Go("test", func() {
		defer close(done)
		panic("isolated")
	})
	<-done
}

func TestMustNotNil(t *testing.T) {
	var p *int
	assert.Panics(t, func() { MustNotNil(p, "p") })
	assert.Panics(t, func() { MustNotNil(nil, "nil") })
	assert.NotPanics(t, func() { MustNotNil(1, "int") })
}
