// -----------------------------------------------------------------------
// Mailer Service - SMTP completion notifications
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/models"
)

// Service sends completion notification emails over SMTP. It implements the
// Notifier interface; delivery failures are reported to the caller, which
// treats them as non-critical.
type Service struct {
	config *common.SMTPConfig
	logger arbor.ILogger
}

// NewService creates a new mailer service
func NewService(config *common.SMTPConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

// IsConfigured checks if SMTP has the minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Enabled &&
		s.config.Host != "" &&
		s.config.Username != "" &&
		s.config.Password != "" &&
		s.config.From != ""
}

// NotifyCompletion emails the job owner when a post has been generated.
// Owners without an email-shaped identifier are skipped silently.
func (s *Service) NotifyCompletion(ctx context.Context, job *models.Job, artifact *models.Artifact) error {
	if !s.IsConfigured() {
		s.logger.Debug().Str("job_id", job.ID).Msg("SMTP not configured, skipping completion notification")
		return nil
	}
	if !strings.Contains(job.CreatedBy, "@") {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("created_by", job.CreatedBy).
			Msg("Job owner has no email address, skipping completion notification")
		return nil
	}

	title := "Your post is ready"
	if artifact.Metadata != nil && artifact.Metadata.Title != "" {
		title = artifact.Metadata.Title
	}

	subject := fmt.Sprintf("Post generated: %s", title)
	textBody := fmt.Sprintf("Your post %s has been generated (job %s).", artifact.ID, job.ID)

	if err := s.sendHTMLEmail(job.CreatedBy, subject, artifact.HTML, textBody); err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("to", job.CreatedBy).
		Msg("Completion notification sent")
	return nil
}

// sendHTMLEmail sends a multipart email with HTML and plain text bodies
func (s *Service) sendHTMLEmail(to, subject, htmlBody, textBody string) error {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))

	if htmlBody != "" {
		boundary := generateBoundary()
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")

		if textBody != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks(textBody))
			msg.WriteString("\r\n")
		}

		// Base64 keeps lines under the RFC 5322 length limit
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, s.config.From, to, msg.String())
	}

	return smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg.String()))
}

// sendWithTLS sends email over a direct TLS connection (required for Gmail)
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: host,
	})
	if err != nil {
		// Fallback to STARTTLS if direct TLS fails
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return send(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using a STARTTLS upgrade
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return send(client, auth, from, to, msg)
}

func send(client *smtp.Client, auth smtp.Auth, from, to, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set mail recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// generateBoundary creates a unique MIME boundary
func generateBoundary() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "penman-boundary-fallback"
	}
	return "penman-" + base64.RawURLEncoding.EncodeToString(buf)
}

// encodeBase64WithLineBreaks encodes content with 76-char lines per RFC 2045
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		result.WriteString("\r\n")
	}
	return result.String()
}
