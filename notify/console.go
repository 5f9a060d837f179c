package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Console writes notifications to a writer instead of delivering them. It is
// the fallback channel for deployments without SMTP and the operator-log
// surface of last resort for temporary passwords.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console notifier writing to out; nil defaults to
// stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Send implements Notifier.
func (c *Console) Send(_ context.Context, msg Message) error {
	keys := make([]string, 0, len(msg.Payload))
	for k := range msg.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "====== NOTIFICATION (%s) ======\n", msg.Kind)
	fmt.Fprintf(&b, "to: %s\n", msg.Recipient)
	if msg.Subject != "" {
		fmt.Fprintf(&b, "subject: %s\n", msg.Subject)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, msg.Payload[k])
	}
	b.WriteString("===============================\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, b.String())
	return err
}
