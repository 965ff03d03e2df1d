// ABOUTME: Tests for the SMTP notifier against an in-process fake mail server
// ABOUTME: Verifies the SMTP exchange, message headers, and config validation

package notify

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTPServer accepts one session and captures the DATA section.
func fakeSMTPServer(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 localhost ESMTP")

		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 localhost")
			case cmd == "DATA":
				write("354 end with <CR><LF>.<CR><LF>")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				out <- body.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 ok")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestSMTPNotifier_Send(t *testing.T) {
	host, port, data := fakeSMTPServer(t)

	n, err := NewSMTPNotifier(SMTPConfig{
		Host: host,
		Port: port,
		From: "Relay <relay@example.com>",
		To:   []string{"ops@example.com"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = n.Send(ctx, Notification{ConversationKey: "v1", Name: "Sam", Text: "hello"})
	require.NoError(t, err)

	select {
	case body := <-data:
		assert.Contains(t, body, "Subject: New Chat Message\r\n")
		assert.Contains(t, body, "To: ops@example.com\r\n")
		assert.Contains(t, body, "New message from: Sam\r\n")
		assert.Contains(t, body, "hello")
	case <-time.After(time.Second):
		t.Fatal("fake server never received DATA")
	}
}

func TestSMTPNotifier_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	n, err := NewSMTPNotifier(SMTPConfig{
		Host: "127.0.0.1",
		Port: port,
		From: "relay@example.com",
		To:   []string{"ops@example.com"},
	})
	require.NoError(t, err)

	err = n.Send(context.Background(), Notification{Name: "Sam", Text: "hello"})
	assert.Error(t, err)
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{"missing host", SMTPConfig{From: "a@b", To: []string{"c@d"}}},
		{"missing from", SMTPConfig{Host: "mail", To: []string{"c@d"}}},
		{"missing to", SMTPConfig{Host: "mail", From: "a@b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTPNotifier(tt.cfg)
			assert.Error(t, err)
		})
	}

	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail", From: "a@b", To: []string{"c@d"}})
	require.NoError(t, err)
	assert.Equal(t, net.JoinHostPort("mail", strconv.Itoa(587)), n.addr)
}
