package auth_test

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/auth"
	"merchantcrm/internal/mailer"
	"merchantcrm/internal/models"
	"merchantcrm/internal/tasks"
	"merchantcrm/internal/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)
var tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

func lastMail(q *testhelpers.RecordingEnqueuer) mailer.Message {
	sent := q.OfType(tasks.TypeSendEmail)
	ExpectWithOffset(1, sent).NotTo(BeEmpty())
	var msg mailer.Message
	ExpectWithOffset(1, json.Unmarshal(sent[len(sent)-1].Payload(), &msg)).To(Succeed())
	return msg
}

func kindOf(err error) apperr.Kind {
	return apperr.KindOf(err)
}

var _ = Describe("Service", func() {
	var (
		ctx    context.Context
		dbConn *gorm.DB
		queue  *testhelpers.RecordingEnqueuer
		svc    *auth.Service
		now    time.Time
		user   *models.User
	)

	login := func(ip string) (*auth.LoginResult, error) {
		return svc.Login(ctx, auth.LoginInput{Email: user.Email, Password: testhelpers.DefaultPassword, IP: ip, UserAgent: "test"})
	}

	badLogin := func() error {
		_, err := svc.Login(ctx, auth.LoginInput{Email: user.Email, Password: "wrong password", IP: "10.0.0.1"})
		return err
	}

	BeforeEach(func() {
		ctx = context.Background()
		dbConn = testhelpers.NewTestDB()
		queue = &testhelpers.RecordingEnqueuer{}
		now = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

		svc = auth.NewService(dbConn, auth.NewSessionManager("test-secret", 12*time.Hour), queue, zap.NewNop(), auth.Options{
			MaxAttempts:   3,
			LockoutWindow: 15 * time.Minute,
			TwoFactorTTL:  10 * time.Minute,
			ResetTTL:      time.Hour,
			BcryptCost:    bcrypt.MinCost,
			AppBaseURL:    "https://crm.example",
		}).WithClock(func() time.Time { return now })

		user = testhelpers.CreateUser(dbConn, &models.User{Email: "ann@example.com", FirstName: "Ann"})
	})

	Describe("Login", func() {
		It("opens a session for a first login without 2FA", func() {
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequiresTwoFactor).To(BeFalse())
			Expect(res.Token).NotTo(BeEmpty())

			authed, session, err := svc.Authenticate(ctx, res.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(authed.ID).To(Equal(user.ID))
			Expect(session.IPAddress).To(Equal("10.0.0.1"))

			stored, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).First(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.LastLoginIP).To(Equal("10.0.0.1"))
		})

		It("matches email case-insensitively", func() {
			_, err := svc.Login(ctx, auth.LoginInput{Email: "  ANN@example.com ", Password: testhelpers.DefaultPassword, IP: "10.0.0.1"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("gives the same answer for unknown users and wrong passwords", func() {
			_, errUnknown := svc.Login(ctx, auth.LoginInput{Email: "nobody@example.com", Password: "whatever1", IP: "10.0.0.1"})
			errWrong := badLogin()

			Expect(kindOf(errUnknown)).To(Equal(apperr.Unauthorized))
			Expect(errWrong.Error()).To(Equal(errUnknown.Error()))
		})

		It("locks the account after too many failures inside the window", func() {
			for i := 0; i < 3; i++ {
				Expect(kindOf(badLogin())).To(Equal(apperr.Unauthorized))
				now = now.Add(time.Minute)
			}

			_, err := login("10.0.0.1")
			Expect(kindOf(err)).To(Equal(apperr.Locked))

			now = now.Add(16 * time.Minute)
			_, err = login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not count failures from before the last success", func() {
			Expect(badLogin()).To(HaveOccurred())
			Expect(badLogin()).To(HaveOccurred())
			now = now.Add(time.Second)
			_, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Second)
			Expect(kindOf(badLogin())).To(Equal(apperr.Unauthorized))
			Expect(kindOf(badLogin())).To(Equal(apperr.Unauthorized))
			_, err = login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets an admin unlock early", func() {
			for i := 0; i < 3; i++ {
				Expect(badLogin()).To(HaveOccurred())
			}
			_, err := login("10.0.0.1")
			Expect(kindOf(err)).To(Equal(apperr.Locked))

			now = now.Add(time.Second)
			Expect(svc.UnlockUser(ctx, user.ID)).To(Succeed())
			now = now.Add(time.Second)

			_, err = login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses disabled accounts", func() {
			_, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "status", models.UserStatusDisabled)
			Expect(err).NotTo(HaveOccurred())

			_, err = login("10.0.0.1")
			Expect(kindOf(err)).To(Equal(apperr.Forbidden))
		})
	})

	Describe("two-factor", func() {
		It("challenges logins from a new IP and completes with the mailed code", func() {
			_, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Hour)
			res, err := login("192.168.1.20")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequiresTwoFactor).To(BeTrue())
			Expect(res.Reason).To(Equal(auth.ReasonNewIP))
			Expect(res.Token).To(BeEmpty())

			msg := lastMail(queue)
			Expect(msg.To).To(Equal("ann@example.com"))
			code := codePattern.FindStringSubmatch(msg.HTML)[1]

			done, err := svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "192.168.1.20", "test")
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Token).NotTo(BeEmpty())

			_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "192.168.1.20", "test")
			Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
		})

		It("always challenges users with 2FA enabled", func() {
			_, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "two_factor_enabled", true)
			Expect(err).NotTo(HaveOccurred())

			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequiresTwoFactor).To(BeTrue())
			Expect(res.Reason).To(Equal(auth.ReasonTwoFactorEnabled))
		})

		It("rejects expired codes", func() {
			_, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "two_factor_enabled", true)
			Expect(err).NotTo(HaveOccurred())
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			code := codePattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			now = now.Add(11 * time.Minute)
			_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "10.0.0.1", "test")
			Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
		})

		It("burns the challenge after repeated wrong codes", func() {
			_, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "two_factor_enabled", true)
			Expect(err).NotTo(HaveOccurred())
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			code := codePattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			wrong := "000000"
			if code == wrong {
				wrong = "111111"
			}
			for i := 0; i < 5; i++ {
				_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, wrong, "10.0.0.1", "test")
				Expect(err).To(HaveOccurred())
			}

			_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "10.0.0.1", "test")
			Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
		})

		It("caps guesses made in parallel", func() {
			sqlDB, err := dbConn.DB()
			Expect(err).NotTo(HaveOccurred())
			sqlDB.SetMaxOpenConns(1)

			_, err = gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "two_factor_enabled", true)
			Expect(err).NotTo(HaveOccurred())
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			code := codePattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			wrong := "000000"
			if code == wrong {
				wrong = "111111"
			}
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := svc.VerifyTwoFactor(ctx, res.ChallengeID, wrong, "10.0.0.1", "test")
					Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
				}()
			}
			wg.Wait()

			ch, err := gorm.G[models.TwoFactorChallenge](dbConn).Where("id = ?", res.ChallengeID).First(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.Attempts).To(Equal(5))

			_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "10.0.0.1", "test")
			Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
		})

		It("resends a fresh code", func() {
			_, err := gorm.G[models.User](dbConn).Where("id = ?", user.ID).Update(ctx, "two_factor_enabled", true)
			Expect(err).NotTo(HaveOccurred())
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ResendTwoFactor(ctx, res.ChallengeID)).To(Succeed())
			Expect(queue.OfType(tasks.TypeSendEmail)).To(HaveLen(2))
			code := codePattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			_, err = svc.VerifyTwoFactor(ctx, res.ChallengeID, code, "10.0.0.1", "test")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("sessions", func() {
		It("stops accepting a token after logout", func() {
			res, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Logout(ctx, res.Session.ID)).To(Succeed())
			_, _, err = svc.Authenticate(ctx, res.Token)
			Expect(kindOf(err)).To(Equal(apperr.Unauthorized))
		})

		It("revokes other sessions when the password changes", func() {
			first, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			second, err := login("10.0.0.1")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ChangePassword(ctx, user, testhelpers.DefaultPassword, "a brand new secret", second.Session.ID)).To(Succeed())

			_, _, err = svc.Authenticate(ctx, first.Token)
			Expect(err).To(HaveOccurred())
			_, _, err = svc.Authenticate(ctx, second.Token)
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires the current password to change it", func() {
			err := svc.ChangePassword(ctx, user, "not it at all", "a brand new secret", "")
			Expect(kindOf(err)).To(Equal(apperr.Invalid))
		})
	})

	Describe("password reset", func() {
		It("resets with the mailed token exactly once", func() {
			Expect(svc.RequestPasswordReset(ctx, "ann@example.com")).To(Succeed())
			token := tokenPattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			Expect(svc.ResetPassword(ctx, token, "fresh password 1")).To(Succeed())
			_, err := svc.Login(ctx, auth.LoginInput{Email: user.Email, Password: "fresh password 1", IP: "10.0.0.1"})
			Expect(err).NotTo(HaveOccurred())

			Expect(kindOf(svc.ResetPassword(ctx, token, "another password"))).To(Equal(apperr.Invalid))
		})

		It("stays silent for unknown addresses", func() {
			Expect(svc.RequestPasswordReset(ctx, "ghost@example.com")).To(Succeed())
			Expect(queue.Tasks).To(BeEmpty())
		})

		It("rejects expired tokens", func() {
			Expect(svc.RequestPasswordReset(ctx, "ann@example.com")).To(Succeed())
			token := tokenPattern.FindStringSubmatch(lastMail(queue).HTML)[1]

			now = now.Add(2 * time.Hour)
			Expect(kindOf(svc.ResetPassword(ctx, token, "fresh password 1"))).To(Equal(apperr.Invalid))
		})
	})
})
