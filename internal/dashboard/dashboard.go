// Package dashboard serves the role-based home page widgets.
package dashboard

import (
	"context"
	"sort"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"

	"gorm.io/gorm"
)

const recentLimit = 5

type Service struct {
	DB       *gorm.DB
	Registry *Registry
	now      func() time.Time
}

func NewService(db *gorm.DB, registry *Registry) *Service {
	return &Service{DB: db, Registry: registry, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LayoutItem is one widget as the user arranged it.
type LayoutItem struct {
	Widget
	Position int  `json:"position"`
	Visible  bool `json:"visible"`
}

// Layout returns the user's widgets: stored preferences first in their saved
// order, then any permitted widget the user never arranged.
func (s *Service) Layout(ctx context.Context, user *models.User) ([]LayoutItem, error) {
	prefs, err := gorm.G[models.DashboardWidgetPreference](s.DB).
		Where("user_id = ?", user.ID).Order("position ASC").Find(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "load widget preferences")
	}

	items := make([]LayoutItem, 0, len(prefs))
	placed := map[string]bool{}
	for _, p := range prefs {
		if !s.Registry.Permits(user.Role, p.WidgetKey) || placed[p.WidgetKey] {
			continue
		}
		w, _ := s.Registry.Get(p.WidgetKey)
		placed[p.WidgetKey] = true
		items = append(items, LayoutItem{Widget: w, Visible: p.Visible})
	}
	for _, w := range s.Registry.Allowed(user.Role) {
		if !placed[w.Key] {
			items = append(items, LayoutItem{Widget: w, Visible: true})
		}
	}
	for i := range items {
		items[i].Position = i
	}
	return items, nil
}

type SaveItem struct {
	Key     string `json:"key" binding:"required"`
	Visible bool   `json:"visible"`
}

// SaveLayout replaces the user's preferences with items, in order.
func (s *Service) SaveLayout(ctx context.Context, user *models.User, items []SaveItem) ([]LayoutItem, error) {
	seen := map[string]bool{}
	for _, it := range items {
		if !s.Registry.Permits(user.Role, it.Key) {
			return nil, apperr.Forbiddenf("Widget %q is not available to you", it.Key)
		}
		if seen[it.Key] {
			return nil, apperr.InvalidFields("Layout is invalid", map[string]string{it.Key: "appears more than once"})
		}
		seen[it.Key] = true
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := gorm.G[models.DashboardWidgetPreference](tx).Where("user_id = ?", user.ID).Delete(ctx); err != nil {
			return err
		}
		for i, it := range items {
			pref := models.DashboardWidgetPreference{UserID: user.ID, WidgetKey: it.Key, Position: i, Visible: it.Visible}
			if err := gorm.G[models.DashboardWidgetPreference](tx).Create(ctx, &pref); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "save widget preferences")
	}
	return s.Layout(ctx, user)
}

// Data computes the payload of one widget for user.
func (s *Service) Data(ctx context.Context, user *models.User, key string) (any, error) {
	if _, ok := s.Registry.Get(key); !ok {
		return nil, apperr.NotFoundf("Widget not found")
	}
	if !s.Registry.Permits(user.Role, key) {
		return nil, apperr.Forbiddenf("Widget %q is not available to you", key)
	}

	sc := scope.For(user)
	db := s.DB.WithContext(ctx)

	var (
		data any
		err  error
	)
	switch key {
	case "merchant_status":
		data, err = countByStatus(db.Model(&models.Merchant{}).Scopes(sc.Merchants))
	case "prospect_pipeline":
		data, err = countByStatus(db.Model(&models.Prospect{}).Scopes(sc.Prospects))
	case "recent_alerts":
		data, err = s.recentAlerts(db, sc)
	case "pending_submissions":
		data, err = s.pendingSubmissions(db, sc)
	case "my_applications":
		data, err = countByStatus(db.Model(&models.PdfFormSubmission{}).Scopes(sc.Submissions))
	case "location_summary":
		data, err = s.locationSummary(db, sc)
	case "active_campaigns":
		data, err = s.activeCampaigns(ctx)
	case "agent_leaderboard":
		data, err = s.agentLeaderboard(db)
	case "security_overview":
		data, err = s.securityOverview(db)
	default:
		return nil, apperr.NotFoundf("Widget not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load widget "+key)
	}
	return data, nil
}

type StatusCounts struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

func countByStatus(q *gorm.DB) (*StatusCounts, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := q.Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := &StatusCounts{ByStatus: map[string]int64{}}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.Total += r.Count
	}
	return out, nil
}

type AlertsWidget struct {
	Unread int64          `json:"unread"`
	Alerts []models.Alert `json:"alerts"`
}

func (s *Service) recentAlerts(db *gorm.DB, sc scope.Scope) (*AlertsWidget, error) {
	out := &AlertsWidget{Alerts: []models.Alert{}}
	if err := db.Model(&models.Alert{}).Scopes(sc.Alerts).Where("read_at IS NULL").Count(&out.Unread).Error; err != nil {
		return nil, err
	}
	err := db.Scopes(sc.Alerts).Order("created_at DESC, id DESC").Limit(recentLimit).Find(&out.Alerts).Error
	return out, err
}

type SubmissionsWidget struct {
	Count  int64                      `json:"count"`
	Recent []models.PdfFormSubmission `json:"recent"`
}

func (s *Service) pendingSubmissions(db *gorm.DB, sc scope.Scope) (*SubmissionsWidget, error) {
	out := &SubmissionsWidget{Recent: []models.PdfFormSubmission{}}
	pending := func() *gorm.DB {
		return db.Model(&models.PdfFormSubmission{}).Scopes(sc.Submissions).Where("status = ?", models.SubmissionSubmitted)
	}
	if err := pending().Count(&out.Count).Error; err != nil {
		return nil, err
	}
	err := pending().Order("submitted_at ASC").Limit(recentLimit).Find(&out.Recent).Error
	return out, err
}

type LocationsWidget struct {
	Total   int64 `json:"total"`
	WithMID int64 `json:"with_mid"`
	Pending int64 `json:"without_mid"`
}

func (s *Service) locationSummary(db *gorm.DB, sc scope.Scope) (*LocationsWidget, error) {
	out := &LocationsWidget{}
	if err := db.Model(&models.Location{}).Scopes(sc.Locations).Count(&out.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Location{}).Scopes(sc.Locations).Where("mid IS NOT NULL").Count(&out.WithMID).Error; err != nil {
		return nil, err
	}
	out.Pending = out.Total - out.WithMID
	return out, nil
}

func (s *Service) activeCampaigns(ctx context.Context) ([]models.Campaign, error) {
	all, err := gorm.G[models.Campaign](s.DB).Where("active = ?", true).Order("name ASC").Find(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	live := []models.Campaign{}
	for _, c := range all {
		if c.LiveAt(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

type LeaderboardEntry struct {
	AgentID   uint   `json:"agent_id"`
	Name      string `json:"name"`
	Merchants int64  `json:"merchants"`
}

func (s *Service) agentLeaderboard(db *gorm.DB) ([]LeaderboardEntry, error) {
	var rows []struct {
		ID        uint
		FirstName string
		LastName  string
		Merchants int64
	}
	err := db.Model(&models.Agent{}).
		Select("agents.id, agents.first_name, agents.last_name, COUNT(merchants.id) AS merchants").
		Joins("LEFT JOIN merchants ON merchants.agent_id = agents.id").
		Group("agents.id, agents.first_name, agents.last_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LeaderboardEntry{AgentID: r.ID, Name: r.FirstName + " " + r.LastName, Merchants: r.Merchants})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Merchants != out[j].Merchants {
			return out[i].Merchants > out[j].Merchants
		}
		return out[i].AgentID < out[j].AgentID
	})
	if len(out) > recentLimit {
		out = out[:recentLimit]
	}
	return out, nil
}

type SecurityWidget struct {
	FailedLogins24h int64 `json:"failed_logins_24h"`
	ActiveSessions  int64 `json:"active_sessions"`
	DisabledUsers   int64 `json:"disabled_users"`
}

func (s *Service) securityOverview(db *gorm.DB) (*SecurityWidget, error) {
	now := s.now().UTC()
	out := &SecurityWidget{}
	if err := db.Model(&models.LoginAttempt{}).Where("success = ? AND created_at >= ?", false, now.Add(-24*time.Hour)).Count(&out.FailedLogins24h).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Session{}).Where("revoked_at IS NULL AND expires_at > ?", now).Count(&out.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("status = ?", models.UserStatusDisabled).Count(&out.DisabledUsers).Error; err != nil {
		return nil, err
	}
	return out, nil
}
