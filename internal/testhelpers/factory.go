package testhelpers

import (
	"context"
	"fmt"
	"sync"

	"merchantcrm/internal/db"
	"merchantcrm/internal/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	g "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every factory-built user gets.
const DefaultPassword = "correct-horse-battery"

// NewTestDB opens a private in-memory sqlite database with every table migrated.
func NewTestDB() *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	conn, err := db.InitDB("sqlite", dsn)
	g.Expect(err).NotTo(g.HaveOccurred())
	g.Expect(db.Migrate(conn)).To(g.Succeed())
	return conn
}

// CleanupDB empties every table.
func CleanupDB(conn *gorm.DB) {
	all := models.All()
	for i := len(all) - 1; i >= 0; i-- {
		err := conn.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(all[i]).Error
		g.Expect(err).NotTo(g.HaveOccurred())
	}
}

// CreateUser stores a user with DefaultPassword. Empty fields get defaults.
func CreateUser(conn *gorm.DB, user *models.User) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	g.Expect(err).NotTo(g.HaveOccurred())

	if user.Email == "" {
		user.Email = fmt.Sprintf("%s@example.com", uuid.NewString()[:8])
	}
	if user.Role == "" {
		user.Role = models.RoleAdmin
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	if user.FirstName == "" {
		user.FirstName = "Test"
	}
	user.PasswordHash = string(hash)

	create(conn, user)
	return user
}

func CreateAgent(conn *gorm.DB, agent *models.Agent) *models.Agent {
	if agent.FirstName == "" {
		agent.FirstName = "Alex"
	}
	if agent.LastName == "" {
		agent.LastName = "Agent"
	}
	if agent.Email == "" {
		agent.Email = fmt.Sprintf("agent-%s@example.com", uuid.NewString()[:8])
	}
	create(conn, agent)
	return agent
}

func CreateAcquirer(conn *gorm.DB, acquirer *models.Acquirer) *models.Acquirer {
	if acquirer.Name == "" {
		acquirer.Name = "Acquirer " + uuid.NewString()[:6]
	}
	if acquirer.Code == "" {
		acquirer.Code = "A" + uuid.NewString()[:5]
	}
	create(conn, acquirer)
	return acquirer
}

func CreateMerchant(conn *gorm.DB, merchant *models.Merchant) *models.Merchant {
	if merchant.LegalName == "" {
		merchant.LegalName = "Merchant " + uuid.NewString()[:6] + " LLC"
	}
	if merchant.Status == "" {
		merchant.Status = models.MerchantStatusPending
	}
	create(conn, merchant)
	return merchant
}

func CreateProspect(conn *gorm.DB, prospect *models.Prospect) *models.Prospect {
	if prospect.BusinessName == "" {
		prospect.BusinessName = "Prospect " + uuid.NewString()[:6]
	}
	if prospect.Status == "" {
		prospect.Status = models.ProspectStatusNew
	}
	create(conn, prospect)
	return prospect
}

// CreatePdfForm stores a published form with the given fields.
func CreatePdfForm(conn *gorm.DB, fields ...models.PdfFormField) *models.PdfForm {
	form := &models.PdfForm{
		Name:     "Merchant Processing Application",
		FileName: "mpa.pdf",
		FileSize: 9,
		Checksum: uuid.NewString(),
		FileData: []byte("%PDF-1.7\n"),
		Status:   models.FormStatusPublished,
		Fields:   fields,
	}
	create(conn, form)
	return form
}

func create[T any](conn *gorm.DB, v *T) {
	result := gorm.WithResult()
	g.Expect(gorm.G[T](conn, result).Create(context.Background(), v)).To(g.Succeed())
	g.Expect(result.RowsAffected).To(g.BeNumerically(">=", 1))
}

// RecordingEnqueuer keeps enqueued tasks in memory.
type RecordingEnqueuer struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
}

func (r *RecordingEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tasks = append(r.Tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type(), Payload: task.Payload()}, nil
}

// OfType returns the recorded tasks with the given type name.
func (r *RecordingEnqueuer) OfType(typename string) []*asynq.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*asynq.Task
	for _, t := range r.Tasks {
		if t.Type() == typename {
			out = append(out, t)
		}
	}
	return out
}
