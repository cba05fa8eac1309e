package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGo_FailureKillsAndPropagatesToWait(t *testing.T) {
	sup := New(zerolog.Nop())
	boom := errors.New("boom")

	sup.Go("failer", func() error {
		return boom
	})
	sup.Go("waiter", func() error {
		<-sup.Dying()
		return nil
	})

	err := sup.Wait()
	require.ErrorIs(t, err, boom)
}

func TestKill_StopsDyingGoroutines(t *testing.T) {
	sup := New(zerolog.Nop())
	started := make(chan struct{})
	sup.Go("worker", func() error {
		close(started)
		<-sup.Dying()
		return nil
	})

	<-started
	sup.Kill(nil)
	done := make(chan struct{})
	go func() {
		_ = sup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not shut down after Kill")
	}
}
