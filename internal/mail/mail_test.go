package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"annopedia/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvitation(t *testing.T) {
	msg, err := Render("annopedia@localhost", Invitation{
		To:          "alice@example.org",
		Username:    "alice",
		Inviter:     "bob",
		Project:     "News",
		Token:       "abc123",
		FrontendURL: "https://annopedia.example/",
	})
	require.NoError(t, err)

	assert.Equal(t, "[Annopedia] Invitation to contribute to News", msg.Subject)
	assert.Equal(t, "alice@example.org", msg.To)
	assert.Contains(t, msg.Body, "Hi alice!")
	assert.Contains(t, msg.Body, "invited by bob to contribute to the project News")
	assert.Contains(t, msg.Body, "https://annopedia.example/annotator/annotate?token=abc123")
}

func TestNewSelectsMailer(t *testing.T) {
	assert.IsType(t, LogMailer{}, New(config.MailConfig{}))
	assert.IsType(t, &SMTPMailer{}, New(config.MailConfig{Enabled: true, Host: "smtp.example.org", Port: 587}))
}

// fakeSMTP is a minimal SMTP server that records the DATA of one message.
type fakeSMTP struct {
	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	rcpt string
	data string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(func() {
		ln.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeSMTP) serve() {
	defer f.wg.Done()
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			f.mu.Lock()
			f.rcpt = strings.TrimSpace(line[len("RCPT TO:"):])
			f.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 unsupported")
		}
	}
}

func TestSMTPMailerSend(t *testing.T) {
	srv := startFakeSMTP(t)
	host, port, err := net.SplitHostPort(srv.ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := config.MailConfig{Enabled: true, Host: host, Port: p, From: "annopedia@localhost", FrontendURL: "http://front"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = SendInvitation(ctx, New(cfg), cfg, Invitation{
		To: "alice@example.org", Username: "alice", Inviter: "bob", Project: "News", Token: "t0k",
	})
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "<alice@example.org>", srv.rcpt)
	assert.Contains(t, srv.data, "Subject: [Annopedia] Invitation to contribute to News\r\n")
	assert.Contains(t, srv.data, "http://front/annotator/annotate?token=t0k\r\n")
}

func TestSMTPMailerDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	m := NewSMTPMailer(config.MailConfig{Host: "127.0.0.1", Port: addr.Port})
	err = m.Send(context.Background(), Message{From: "a@b", To: "c@d"})
	assert.Error(t, err)
}

func TestLogMailerNeverFails(t *testing.T) {
	assert.NoError(t, LogMailer{}.Send(context.Background(), Message{To: "x@y"}))
}
