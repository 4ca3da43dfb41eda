package mail

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strconv"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/booking_models"
)

const bookingConfirmedTemplate = "templates/email/booking_confirmed.html"

var emailTemplates *template.Template

// InitTemplates parses the embedded email templates. Must be called once
// at startup before any send.
func InitTemplates(fs embed.FS) {
	emailTemplates = template.Must(template.ParseFS(fs, "templates/email/*.html"))
}

// Sender sends transactional email over SMTP.
type Sender struct {
	FromEmail string
}

func NewSender() *Sender {
	return &Sender{FromEmail: os.Getenv("FROM_EMAIL")}
}

type bookingConfirmationData struct {
	Name      string
	BookingID string
	StartTime string
	TxHash    string
	Guests    []string
}

// SendBookingConfirmation emails the attendee after their payment settles.
func (s *Sender) SendBookingConfirmation(booking *booking_models.Booking, txHash string) error {
	if booking.AttendeeEmail == "" {
		return fmt.Errorf("booking %s has no attendee email", booking.BookingID)
	}

	startTime := "to be scheduled"
	if booking.StartTime != nil {
		startTime = booking.StartTime.Format(time.RFC1123)
	}

	data := bookingConfirmationData{
		Name:      booking.AttendeeName,
		BookingID: booking.BookingID,
		StartTime: startTime,
		TxHash:    txHash,
		Guests:    booking.Guests,
	}
	return s.send(booking.AttendeeEmail, "Your booking is confirmed", bookingConfirmedTemplate, data)
}

func (s *Sender) send(toEmail, subject, templatePath string, data interface{}) error {
	if emailTemplates == nil {
		return fmt.Errorf("email templates not initialized")
	}

	var body bytes.Buffer
	name := templatePath[len("templates/email/"):]
	if err := emailTemplates.ExecuteTemplate(&body, name, data); err != nil {
		logger.ErrorLogger.Errorf("Failed to execute email template %s: %v", templatePath, err)
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	mailer := gomail.NewMessage()
	mailer.SetHeader("From", s.FromEmail)
	mailer.SetHeader("To", toEmail)
	mailer.SetHeader("Subject", subject)
	mailer.SetBody("text/html", body.String())

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid SMTP port: %v", err)
		return fmt.Errorf("invalid SMTP port: %w", err)
	}

	smtpHost := os.Getenv("SMTP_HOST")
	dialer := gomail.NewDialer(smtpHost, port, os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"))
	dialer.TLSConfig = &tls.Config{ServerName: smtpHost}

	if err := dialer.DialAndSend(mailer); err != nil {
		logger.ErrorLogger.Errorf("Failed to send email to %s: %v", toEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoLogger.Infof("Sent booking confirmation email to %s", toEmail)
	return nil
}
