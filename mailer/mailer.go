// Package mailer defines the outbound-mail collaborator and the messages
// the flows send. Delivery itself is external; the flows only call Send.
package mailer

import (
	"context"
	"fmt"

	"github.com/swaptacular/accountd/internal/logger"
)

// Message is one outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DuplicateRegistration is sent to an email that tried to sign up again.
// The web response is identical to a fresh signup, so only the mailbox
// owner learns the account already exists.
func DuplicateRegistration(email, site string) Message {
	return Message{
		To:      email,
		Subject: "Duplicate Registration",
		Body: fmt.Sprintf(
			"An attempt was made to create a new account at %s with this email "+
				"address (%s), but an account registered to it already exists.\n\n"+
				"If this was you, you can recover your password from the login page.\n",
			site, email,
		),
	}
}

// ConfirmRegistration carries the link that resumes a pending signup.
func ConfirmRegistration(email, registerLink string) Message {
	return Message{
		To:      email,
		Subject: "Create a New Account",
		Body: fmt.Sprintf(
			"To create your new account for %s, follow this link:\n\n%s\n\n"+
				"If you did not request an account, ignore this message.\n",
			email, registerLink,
		),
	}
}

// ChangePassword carries the link that resumes a password recovery.
func ChangePassword(email, changePasswordLink string) Message {
	return Message{
		To:      email,
		Subject: "Change Account Password",
		Body: fmt.Sprintf(
			"To choose a new password for %s, follow this link:\n\n%s\n\n"+
				"If you did not request a password change, ignore this message.\n",
			email, changePasswordLink,
		),
	}
}

// ConfirmEmailChange carries the link that confirms a pending email change.
// It is sent to the new address, which must prove it is reachable.
func ConfirmEmailChange(newEmail, confirmLink string) Message {
	return Message{
		To:      newEmail,
		Subject: "Change Email Address",
		Body: fmt.Sprintf(
			"To confirm changing your email address to %s, follow this link:\n\n%s\n\n"+
				"If you did not request an email change, ignore this message.\n",
			newEmail, confirmLink,
		),
	}
}

// VerificationCode carries the second factor for a login from an unknown
// device. The user agent in the subject lets the owner spot foreign logins.
func VerificationCode(email, code, userAgent, changePasswordPage string) Message {
	return Message{
		To:      email,
		Subject: fmt.Sprintf("New login from %s", userAgent),
		Body: fmt.Sprintf(
			"Your login verification code is:\n\n\t%s\n\n"+
				"If this login was not you, change your password immediately:\n%s\n",
			code, changePasswordPage,
		),
	}
}

// Log is a Mailer that only logs deliveries. Useful for development and
// tests.
type Log struct {
	Logger *logger.Logger
}

// Send logs the message instead of delivering it.
func (l Log) Send(ctx context.Context, msg Message) error {
	l.Logger.Info("outbound mail", "to", msg.To, "subject", msg.Subject)
	return nil
}
