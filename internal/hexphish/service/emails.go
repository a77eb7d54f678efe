package service

import (
	"fmt"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/pkg/mailx"
)

func smtpConfig(s domain.MailSettings) mailx.Config {
	return mailx.Config{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		UseTLS:   s.UseTLS,
		UseSSL:   s.UseSSL,
	}
}

func welcomeEmail(s domain.MailSettings, user domain.User, password string) mailx.Message {
	name, from := s.Sender()
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"An account has been created for you on the HexPhish console.\n\n"+
			"Username: %s\n"+
			"Temporary password: %s\n\n"+
			"You will be asked to choose a new password when you first sign in.\n",
		user.Username, user.Username, password,
	)
	return mailx.Message{
		FromName:  name,
		FromEmail: from,
		To:        user.Email,
		Subject:   "Your HexPhish account",
		Body:      body,
	}
}

func resetEmail(s domain.MailSettings, user domain.User, link string) mailx.Message {
	name, from := s.Sender()
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"A password reset was requested for your HexPhish account. Follow the\n"+
			"link below to choose a new password. The link is valid for 2 hours\n"+
			"and can be used once.\n\n"+
			"%s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		user.Username, link,
	)
	return mailx.Message{
		FromName:  name,
		FromEmail: from,
		To:        user.Email,
		Subject:   "HexPhish password recovery",
		Body:      body,
	}
}

func mfaCodeEmail(s domain.MailSettings, user domain.User, code string) mailx.Message {
	name, from := s.Sender()
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your HexPhish access code is:\n\n"+
			"    %s\n\n"+
			"The code expires in 10 minutes and can be used once.\n",
		user.Username, code,
	)
	return mailx.Message{
		FromName:  name,
		FromEmail: from,
		To:        user.Email,
		Subject:   "HexPhish access code",
		Body:      body,
	}
}

func testEmail(s domain.MailSettings, to string) mailx.Message {
	name, from := s.Sender()
	return mailx.Message{
		FromName:  name,
		FromEmail: from,
		To:        to,
		Subject:   "HexPhish mail test",
		Body:      "This is a test message from the HexPhish console. Mail delivery is working.\n",
	}
}
