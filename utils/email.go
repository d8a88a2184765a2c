package utils

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"go.uber.org/zap"
)

type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func GetEmailConfig() *EmailConfig {
	return &EmailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

func (c *EmailConfig) Configured() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

func SendEmail(to, subject, htmlBody string) error {
	config := GetEmailConfig()
	if !config.Configured() {
		return fmt.Errorf("SMTP not configured")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		config.From, to, subject)
	msg := []byte(headers + htmlBody)

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	addr := config.Host + ":" + config.Port
	return smtp.SendMail(addr, auth, config.From, []string{to}, msg)
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}

// sendAsync delivers in the background. Unconfigured SMTP is silent.
func sendAsync(kind, to, subject, body string) {
	if !GetEmailConfig().Configured() {
		return
	}
	go func() {
		if err := SendEmail(to, subject, body); err != nil {
			zap.L().Warn("failed to send email", zap.String("kind", kind), zap.String("to", to), zap.Error(err))
		}
	}()
}

func WelcomeEmailBody(name string) string {
	return fmt.Sprintf(`<h2>Welcome to Noir Café, %s!</h2>
<p>Your account is ready. Every order earns loyalty points you can spend on your next coffee.</p>
<p>The Noir Café Team</p>`, firstName(name))
}

func SendWelcomeEmail(email, name string) {
	sendAsync("welcome", email, "Welcome to Noir Café", WelcomeEmailBody(name))
}

func SendOrderConfirmation(email, name, orderNumber string, total float64) {
	body := fmt.Sprintf(`<h2>Order Confirmed</h2>
<p>Hi %s,</p>
<p>Your order <strong>%s</strong> has been placed.</p>
<p>Order total: <strong>%.2f SAR</strong></p>
<p>The Noir Café Team</p>`, firstName(name), orderNumber, total)
	sendAsync("order_confirmation", email, fmt.Sprintf("Order Confirmed - %s", orderNumber), body)
}

func PointsReceiptBody(name string, points, bonus, balance int) string {
	bonusLine := ""
	if bonus > 0 {
		bonusLine = fmt.Sprintf("<p>Bonus: <strong>+%d</strong> points</p>\n", bonus)
	}
	return fmt.Sprintf(`<h2>Points Added</h2>
<p>Hi %s,</p>
<p>Purchased: <strong>%d</strong> points</p>
%s<p>New balance: <strong>%d</strong> points</p>
<p>The Noir Café Team</p>`, firstName(name), points, bonusLine, balance)
}

func SendPointsReceipt(email, name string, points, bonus, balance int) {
	sendAsync("points_receipt", email, "Your Noir Café points receipt", PointsReceiptBody(name, points, bonus, balance))
}
