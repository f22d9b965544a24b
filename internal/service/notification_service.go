package service

import (
	"context"
	"fmt"
	"net/http"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/pkg/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// CertificateNotifier 证书签发后通知学生，失败只记录日志
type CertificateNotifier interface {
	CertificateIssued(ctx context.Context, student *model.Student, course *model.Course, cert *model.Certificate) error
}

type NoopNotifier struct{}

func (NoopNotifier) CertificateIssued(context.Context, *model.Student, *model.Course, *model.Certificate) error {
	return nil
}

type SendGridNotifier struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewCertificateNotifier 未配置 API Key 时返回 NoopNotifier
func NewCertificateNotifier(cfg *config.NotificationConfig) CertificateNotifier {
	if cfg.SendGridAPIKey == "" || cfg.FromEmail == "" {
		logger.Log.Info("SendGrid not configured, certificate emails disabled")
		return NoopNotifier{}
	}
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

func (n *SendGridNotifier) CertificateIssued(ctx context.Context, student *model.Student, course *model.Course, cert *model.Certificate) error {
	subject := fmt.Sprintf("Your certificate for %s", course.Title)
	plain := fmt.Sprintf("Hi %s,\n\nCongratulations on completing %s with a score of %.2f%%.\nCertificate ID: %s\nDownload: %s\n",
		student.Name, course.Title, cert.Marks, cert.CertificateID, cert.CertificateURL)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Congratulations on completing <strong>%s</strong> with a score of %.2f%%.</p>"+
		"<p>Certificate ID: %s</p><p><a href=\"%s\">Download your certificate</a></p>",
		student.Name, course.Title, cert.Marks, cert.CertificateID, cert.CertificateURL)

	msg := mail.NewSingleEmail(n.from, subject, mail.NewEmail(student.Name, student.Email), plain, html)
	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}

	logger.Log.Info("Certificate email sent",
		zap.String("certificateId", cert.CertificateID),
		zap.String("studentId", student.ID))
	return nil
}
