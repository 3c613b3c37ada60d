package services

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"amoflow/internal/config"
	"amoflow/internal/pdf"
)

type emailNotifier struct {
	send   func(m *gomail.Message) error
	from   string
	to     []string
	report pdf.Generator
}

// NewEmailNotifier шлёт итог запуска письмом с PDF-отчётом во вложении.
func NewEmailNotifier(cfg config.EmailConfig, report pdf.Generator) Notifier {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newEmailNotifier(func(m *gomail.Message) error { return dialer.DialAndSend(m) }, cfg, report)
}

func newEmailNotifier(send func(m *gomail.Message) error, cfg config.EmailConfig, report pdf.Generator) *emailNotifier {
	return &emailNotifier{send: send, from: cfg.FromEmail, to: cfg.To, report: report}
}

// NewEmailNotifierWithSender is NewEmailNotifier over an arbitrary gomail.Sender.
func NewEmailNotifierWithSender(sender gomail.Sender, cfg config.EmailConfig, report pdf.Generator) Notifier {
	return newEmailNotifier(func(m *gomail.Message) error { return gomail.Send(sender, m) }, cfg, report)
}

func (s *emailNotifier) Notify(_ context.Context, sum RunSummary) error {
	if len(s.to) == 0 {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	status := "OK"
	if !sum.Success() {
		status = "FAILED"
	}
	m.SetHeader("Subject", fmt.Sprintf("amoflow %s: %s", sum.Action, status))

	body := fmt.Sprintf(`
		<h3>amoflow: %s</h3>
		<pre>%s</pre>
	`, html.EscapeString(string(sum.Action)), html.EscapeString(SummaryText(sum)))
	m.SetBody("text/html", body)

	if s.report != nil {
		data, err := s.report.Generate(BuildReport(sum))
		if err != nil {
			return fmt.Errorf("failed to render run report: %w", err)
		}
		name := fmt.Sprintf("amoflow_%s.pdf", strings.ReplaceAll(sum.RunID, "-", ""))
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send run report email: %w", err)
	}
	return nil
}
