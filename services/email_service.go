package services

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"github.com/sahilchouksey/course-market-api/model"
)

// EmailService handles sending emails via SMTP. Mail is an opaque external
// collaborator here; callers treat every send as best effort.
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string
}

// NewEmailService creates a new email service instance
func NewEmailService() *EmailService {
	port := 587
	if p := os.Getenv("SMTP_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	return &EmailService{
		host:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     getEnvOrDefault("SMTP_FROM", "noreply@coursemarket.app"),
		appURL:   getEnvOrDefault("APP_URL", "http://localhost:3000"),
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.username != "" && e.password != ""
}

// SendPaymentReceipt mails the buyer after a payment completes.
func (e *EmailService) SendPaymentReceipt(toEmail, userName string, payment *model.Payment) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Receipt for %s not sent to %s", payment.TransactionID, toEmail)
		return fmt.Errorf("SMTP not configured")
	}

	courseTitle := "your course"
	if payment.Course != nil {
		courseTitle = payment.Course.Title
	}

	subject := fmt.Sprintf("Payment confirmed - %s", payment.TransactionID)
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Your payment of %d %s for %s was confirmed.\n"+
			"Transaction: %s\n\n"+
			"You now have access to the course at %s/my-courses.\n\n"+
			"Thanks for learning with us!\n",
		userName, payment.FinalAmount, payment.Currency, courseTitle,
		payment.TransactionID, e.appURL,
	)

	return e.send(toEmail, subject, body)
}

// SendEnrollmentConfirmation mails a student after a free-course enrollment.
func (e *EmailService) SendEnrollmentConfirmation(toEmail, userName, courseTitle string) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Enrollment mail not sent to %s", toEmail)
		return fmt.Errorf("SMTP not configured")
	}

	subject := fmt.Sprintf("You're enrolled in %s", courseTitle)
	body := fmt.Sprintf(
		"Hi %s,\n\nYou're enrolled in %s. Start learning at %s/my-courses.\n",
		userName, courseTitle, e.appURL,
	)

	return e.send(toEmail, subject, body)
}

func (e *EmailService) send(to, subject, body string) error {
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", e.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	if err := smtp.SendMail(addr, auth, e.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
