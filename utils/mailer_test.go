package utils

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/config"
)

func TestMain(m *testing.M) {
	config.SetForTesting(config.AppConfig{JWTSecret: "test-secret"})
	os.Exit(m.Run())
}

// plaintextSMTPServer speaks just enough SMTP to answer EHLO without
// advertising STARTTLS.
func plaintextSMTPServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(conn, "220 mail.test ESMTP\r\n")
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250 mail.test\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprintf(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()

	return ln.Addr().String()
}

func TestSMTPMailerRefusesPlaintextDowngrade(t *testing.T) {
	addr := plaintextSMTPServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	old := config.Get()
	cfg := old
	cfg.SMTPHost = host
	cfg.SMTPPort = port
	cfg.SMTPFrom = "noreply@mail.test"
	cfg.SMTPTLS = true
	config.SetForTesting(cfg)
	defer config.SetForTesting(old)

	err = NewSMTPMailer().Send("user@mail.test", "hello", "<p>hi</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")
}

func TestSMTPMailerRequiresConfig(t *testing.T) {
	old := config.Get()
	cfg := old
	cfg.SMTPHost = ""
	config.SetForTesting(cfg)
	defer config.SetForTesting(old)

	err := NewSMTPMailer().Send("user@mail.test", "hello", "<p>hi</p>")
	assert.Error(t, err)
}
