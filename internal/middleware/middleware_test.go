package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"merchantcrm/internal/auth"
	"merchantcrm/internal/metrics"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/testhelpers"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var _ = Describe("middleware", func() {
	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
	})

	Describe("RateLimiter", func() {
		It("answers 429 once the burst is spent", func() {
			rl := middleware.NewRateLimiter(0.001, 2)
			router := gin.New()
			router.Use(rl.Handler())
			router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

			codes := []int{}
			for i := 0; i < 3; i++ {
				resp := httptest.NewRecorder()
				router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))
				codes = append(codes, resp.Code)
			}
			Expect(codes).To(Equal([]int{200, 200, 429}))
		})

		It("tracks clients separately", func() {
			rl := middleware.NewRateLimiter(0.001, 1)
			Expect(rl.Allow("1.1.1.1")).To(BeTrue())
			Expect(rl.Allow("1.1.1.1")).To(BeFalse())
			Expect(rl.Allow("2.2.2.2")).To(BeTrue())
		})

		It("forgets idle clients on the next sweep", func() {
			now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
			rl := middleware.NewRateLimiter(0.001, 1).WithClock(func() time.Time { return now })
			for i := 0; i < 50; i++ {
				rl.Allow(fmt.Sprintf("10.0.0.%d", i))
			}
			Expect(rl.Visitors()).To(Equal(50))

			now = now.Add(5 * time.Minute)
			rl.Allow("10.0.1.1")
			Expect(rl.Visitors()).To(Equal(51))

			now = now.Add(6 * time.Minute)
			Expect(rl.Allow("10.0.0.0")).To(BeTrue())
			Expect(rl.Visitors()).To(Equal(2))
		})
	})

	Describe("SessionAuth", func() {
		var (
			conn   *gorm.DB
			router *gin.Engine
			token  string
		)

		BeforeEach(func() {
			conn = testhelpers.NewTestDB()
			svc := auth.NewService(conn, auth.NewSessionManager("test-secret", time.Hour), &testhelpers.RecordingEnqueuer{}, zap.NewNop(), auth.Options{})
			var err error
			token, err = svc.Sessions.Issue("missing-session", 1, time.Now(), time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())

			router = gin.New()
			router.GET("/private", middleware.SessionAuth(svc, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		})

		get := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			return resp
		}

		It("answers 401 for an unknown session", func() {
			Expect(get().Code).To(Equal(http.StatusUnauthorized))
		})

		It("answers 500 when sessions cannot be loaded", func() {
			sqlDB, err := conn.DB()
			Expect(err).NotTo(HaveOccurred())
			Expect(sqlDB.Close()).To(Succeed())

			resp := get()
			Expect(resp.Code).To(Equal(http.StatusInternalServerError))
			Expect(resp.Body.String()).To(ContainSubstring(`"success":false`))
		})
	})

	Describe("Metrics", func() {
		It("counts requests by route template", func() {
			m := metrics.New()
			router := gin.New()
			router.Use(middleware.Metrics(m))
			router.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			for i := 0; i < 2; i++ {
				router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/7", nil))
			}

			Expect(testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/things/:id", "204"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.InFlight)).To(Equal(0.0))
		})
	})

	Describe("RequireRoles", func() {
		It("rejects requests without a user", func() {
			router := gin.New()
			router.GET("/admin", middleware.RequireRoles("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/admin", nil))
			Expect(resp.Code).To(Equal(http.StatusUnauthorized))
			Expect(resp.Body.String()).To(MatchJSON(`{"success":false,"message":"Authentication required"}`))
		})
	})

	Describe("Recovery", func() {
		It("turns panics into JSON errors", func() {
			router := gin.New()
			router.Use(middleware.Recovery(zap.NewNop()))
			router.GET("/boom", func(c *gin.Context) { panic("boom") })

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))
			Expect(resp.Code).To(Equal(http.StatusInternalServerError))
			Expect(strings.Contains(resp.Body.String(), `"success":false`)).To(BeTrue())
		})
	})
})
