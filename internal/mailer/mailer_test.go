package mailer_test

import (
	"bytes"
	"context"
	"time"

	"merchantcrm/internal/mailer"
	"merchantcrm/internal/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("PlainText", func() {
	It("drops markup, scripts and styles and keeps links", func() {
		raw, err := testhelpers.LoadFixture("alert_email.html")
		Expect(err).NotTo(HaveOccurred())

		text := mailer.PlainText(string(raw))
		Expect(text).To(ContainSubstring("Application submitted"))
		Expect(text).To(ContainSubstring("Harbor Coffee submitted the MPA for review."))
		Expect(text).To(ContainSubstring("Open submission (https://crm.example/submissions/7)"))
		Expect(text).NotTo(ContainSubstring("tracking"))
		Expect(text).NotTo(ContainSubstring("color"))
		Expect(text).NotTo(ContainSubstring("<"))
	})
})

var _ = Describe("templates", func() {
	It("renders the sign-in code", func() {
		msg := mailer.TwoFactorCode("ann@example.com", "Ann", "123456", "10.0.0.9", 10*time.Minute)
		Expect(msg.To).To(Equal("ann@example.com"))
		Expect(msg.HTML).To(ContainSubstring("<strong>123456</strong>"))
		Expect(mailer.PlainText(msg.HTML)).To(ContainSubstring("expires in 10 minutes"))
	})

	It("escapes alert content", func() {
		msg := mailer.AlertNotification("ops@example.com", "New prospect", "<b>Acme</b>", "")
		Expect(msg.HTML).To(ContainSubstring("&lt;b&gt;Acme&lt;/b&gt;"))
		Expect(msg.HTML).NotTo(ContainSubstring("View details"))
	})
})

var _ = Describe("Compose", func() {
	It("writes both text and html parts", func() {
		msg := mailer.PasswordReset("ann@example.com", "Ann", "https://crm.example/reset-password?token=abc", time.Hour)
		m := mailer.Compose("no-reply@crm.example", msg)

		var buf bytes.Buffer
		_, err := m.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("text/plain"))
		Expect(buf.String()).To(ContainSubstring("text/html"))
		Expect(buf.String()).To(ContainSubstring("Subject: Reset your password"))
	})
})

var _ = Describe("LogSender", func() {
	It("refuses messages without a recipient", func() {
		s := &mailer.LogSender{Logger: zap.NewNop()}
		Expect(s.Send(context.Background(), mailer.Message{Subject: "hi"})).NotTo(Succeed())
		Expect(s.Send(context.Background(), mailer.Message{To: "a@b.c", Subject: "hi"})).To(Succeed())
	})
})
