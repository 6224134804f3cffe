// Package notify sends supervisor e-mails: manual override alerts and the daily report.
package notify

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"log"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"facekiosk/internal/attendance"
	"facekiosk/internal/config"
)

// Mailer delivers messages over SMTP.
type Mailer struct {
	from string
	to   []string
	loc  *time.Location
	send func(m *gomail.Message) error
}

// NewMailer creates a mailer from the report settings.
func NewMailer(cfg config.Report) *Mailer {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUsername
	}
	return &Mailer{
		from: from,
		to:   cfg.To,
		loc:  cfg.Location(),
		send: func(msg *gomail.Message) error { return dialer.DialAndSend(msg) },
	}
}

// OverrideAlert reports a manual override so a supervisor can review it.
func (m *Mailer) OverrideAlert(rec attendance.Record) error {
	when := rec.Timestamp.In(m.loc)
	msg := m.message(fmt.Sprintf("Manual override: %s", rec.WorkerName))
	msg.SetBody("text/html", fmt.Sprintf(
		"<p>Attendance for <b>%s</b> (%s)\nwas recorded by manual override\non %s at %s.</p>\n"+
			"<p>No face verification was performed for this entry.</p>\n",
		html.EscapeString(rec.WorkerName),
		html.EscapeString(rec.WorkerID),
		when.Format("2006-01-02"),
		when.Format("15:04:05"),
	))
	return m.deliver(msg)
}

// DailyReport mails the records of day with the CSV export attached.
func (m *Mailer) DailyReport(day time.Time, records []attendance.Record) error {
	var csv bytes.Buffer
	if err := attendance.WriteCSV(&csv, records, m.loc); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	date := day.In(m.loc).Format("2006-01-02")
	overrides := 0
	for _, r := range records {
		if r.Method == attendance.MethodManualOverride {
			overrides++
		}
	}

	msg := m.message(fmt.Sprintf("Attendance report %s", date))
	msg.SetBody("text/html", fmt.Sprintf(
		"<p>Attendance for %s</p>\n<ul>\n<li>Workers present: %d</li>\n<li>Records: %d</li>\n<li>Manual overrides: %d</li>\n</ul>\n",
		date, attendance.PresentCount(records), len(records), overrides,
	))
	msg.Attach(fmt.Sprintf("attendance_report_%s.csv", date),
		gomail.SetHeader(map[string][]string{"Content-Type": {"text/csv"}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(csv.Bytes())
			return err
		}),
	)
	return m.deliver(msg)
}

func (m *Mailer) message(subject string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", subject)
	return msg
}

func (m *Mailer) deliver(msg *gomail.Message) error {
	if err := m.send(msg); err != nil {
		log.Printf("failed to send email: %v", err)
		return err
	}
	log.Printf("email %q sent to %s", msg.GetHeader("Subject")[0], strings.Join(m.to, ", "))
	return nil
}
