package mailer

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/logger"
)

// SMTPSender delivers mail over SMTP with STARTTLS (or implicit TLS on
// port 465).
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	auth := smtp.PlainAuth("", cfg.Private.SmtpUsername, cfg.Private.SmtpPassword, cfg.Public.Smtp.Server)
	return &SMTPSender{cfg: cfg, auth: auth}
}

func (s *SMTPSender) Send(msg Message) error {
	body, err := renderBody(msg)
	if err != nil {
		return err
	}

	raw := s.buildMessage(msg, body)
	address := fmt.Sprintf("%s:%d", s.cfg.Public.Smtp.Server, s.cfg.Public.Smtp.Port)

	// Port 465 = implicit TLS, otherwise STARTTLS
	if s.cfg.Public.Smtp.Port == 465 {
		return s.sendImplicitTLS(address, msg.Recipients, raw)
	}
	return s.sendSTARTTLS(address, msg.Recipients, raw)
}

func (s *SMTPSender) timeout() time.Duration {
	timeout := time.Duration(s.cfg.Public.Smtp.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return timeout
}

func (s *SMTPSender) sendImplicitTLS(address string, recipients []string, raw []byte) error {
	tlsConfig := &tls.Config{ServerName: s.cfg.Public.Smtp.Server}

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: s.timeout()}, "tcp", address, tlsConfig)
	if err != nil {
		logger.Log.Error("failed to connect to SMTP server (implicit TLS)", "address", address, "error", err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Public.Smtp.Server)
	if err != nil {
		logger.Log.Error("failed to create SMTP client", "error", err)
		return err
	}
	defer client.Close()

	return s.sendViaClient(client, recipients, raw)
}

func (s *SMTPSender) sendSTARTTLS(address string, recipients []string, raw []byte) error {
	conn, err := net.DialTimeout("tcp", address, s.timeout())
	if err != nil {
		logger.Log.Error("failed to connect to SMTP server", "address", address, "error", err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Public.Smtp.Server)
	if err != nil {
		logger.Log.Error("failed to create SMTP client", "error", err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.cfg.Public.Smtp.Server}
	if err = client.StartTLS(tlsConfig); err != nil {
		logger.Log.Error("failed to start TLS", "error", err)
		return err
	}

	return s.sendViaClient(client, recipients, raw)
}

func (s *SMTPSender) sendViaClient(client *smtp.Client, recipients []string, raw []byte) error {
	if err := client.Auth(s.auth); err != nil {
		logger.Log.Error("SMTP authentication failed", "error", err)
		return err
	}

	if err := client.Mail(s.cfg.Private.SmtpUsername); err != nil {
		logger.Log.Error("failed to set sender", "error", err)
		return err
	}

	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			logger.Log.Error("failed to set recipient", "recipient", recipient, "error", err)
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		logger.Log.Error("failed to get data writer", "error", err)
		return err
	}

	if _, err = w.Write(raw); err != nil {
		logger.Log.Error("failed to write message", "error", err)
		return err
	}

	if err = w.Close(); err != nil {
		logger.Log.Error("failed to close data writer", "error", err)
		return err
	}

	return client.Quit()
}

func generateMessageID(domain string) string {
	t := time.Now().UnixNano()
	pid := rand.Int63()
	return fmt.Sprintf("<%d.%d@%s>", t, pid, domain)
}

func (s *SMTPSender) buildMessage(msg Message, body string) []byte {
	encodedSubject := mime.QEncoding.Encode("utf-8", msg.Subject)
	encodedSenderName := mime.QEncoding.Encode("utf-8", s.cfg.Public.Smtp.SenderName)

	msgID := generateMessageID(s.cfg.Public.Domain)
	date := time.Now().Format(time.RFC1123Z)

	return fmt.Appendf(nil,
		"Message-ID: %s\r\n"+
			"Date: %s\r\n"+
			"To: %s\r\n"+
			"From: %s <%s>\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		msgID, date, strings.Join(msg.Recipients, ", "), encodedSenderName,
		s.cfg.Private.SmtpUsername, encodedSubject, body,
	)
}
