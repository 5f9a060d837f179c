package notify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deceasedstatus/platform/notify"
)

type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	messages []notify.Message
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.messages))
	copy(out, n.messages)
	return out
}

func TestDispatcher(t *testing.T) {
	msg := notify.Message{
		Kind:      notify.KindTempPassword,
		Recipient: "pat@example.com",
		Subject:   "Your temporary password",
		Payload:   map[string]string{"temp_password": "KjN4mRt2Xw9q"},
	}

	t.Run("delivers in the background", func(t *testing.T) {
		notifier := &recordingNotifier{}
		dispatcher := notify.NewDispatcher(notifier, nil)

		dispatcher.Dispatch(msg)
		dispatcher.Wait()

		require.Len(t, notifier.sent(), 1)
		assert.Equal(t, msg, notifier.sent()[0])
	})

	t.Run("the failure handler receives the full message", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("smtp down")}

		var mu sync.Mutex
		var failed notify.Message
		var failedErr error

		dispatcher := notify.NewDispatcher(notifier, func(m notify.Message, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = m
			failedErr = err
		})

		dispatcher.Dispatch(msg)
		dispatcher.Wait()

		mu.Lock()
		defer mu.Unlock()
		require.Error(t, failedErr)
		// The payload survives, so a lost temporary password can still be
		// recovered from the operator log.
		assert.Equal(t, "KjN4mRt2Xw9q", failed.Payload["temp_password"])
	})

	t.Run("failures stay out of the caller's path", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("smtp down")}
		dispatcher := notify.NewDispatcher(notifier, nil)

		// Dispatch never returns an error; nothing to assert beyond not
		// panicking with a nil failure handler.
		dispatcher.Dispatch(msg)
		dispatcher.Wait()
	})

	t.Run("nil notifier falls back to discard", func(t *testing.T) {
		dispatcher := notify.NewDispatcher(nil, nil)
		dispatcher.Dispatch(msg)
		dispatcher.Wait()
	})

	t.Run("wait covers every in-flight delivery", func(t *testing.T) {
		notifier := &recordingNotifier{}
		dispatcher := notify.NewDispatcher(notifier, nil)

		for i := 0; i < 10; i++ {
			dispatcher.Dispatch(msg)
		}
		dispatcher.Wait()

		assert.Len(t, notifier.sent(), 10)
	})
}

func TestConsole(t *testing.T) {
	t.Run("renders recipient, subject, and payload", func(t *testing.T) {
		var out strings.Builder
		console := notify.NewConsole(&out)

		err := console.Send(context.Background(), notify.Message{
			Kind:      notify.KindTempPassword,
			Recipient: "pat@example.com",
			Subject:   "Your temporary password",
			Payload: map[string]string{
				"name":          "Pat Doe",
				"temp_password": "KjN4mRt2Xw9q",
			},
		})
		require.NoError(t, err)

		text := out.String()
		assert.Contains(t, text, "temp-password")
		assert.Contains(t, text, "to: pat@example.com")
		assert.Contains(t, text, "subject: Your temporary password")
		assert.Contains(t, text, "temp_password: KjN4mRt2Xw9q")
	})
}
