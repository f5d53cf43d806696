package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"merchantcrm/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	// report binding errors under their JSON names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// fail writes err as {success: false, message}. Internal errors are logged and
// hidden from the client.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.StatusOf(err)
	body := gin.H{"success": false, "message": apperr.MessageOf(err)}
	if e, ok := apperr.As(err); ok && len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context, status int, body gin.H) {
	body["success"] = true
	c.JSON(status, body)
}

// bindJSON decodes the body into v, reporting binding failures per field.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = bindingMessage(fe)
			}
			return apperr.InvalidFields("Please fix the highlighted fields", fields)
		}
		return apperr.Invalidf("Request body is not valid JSON")
	}
	return nil
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "numeric":
		return "must contain only digits"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// paramID parses a positive integer path parameter.
func paramID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.NotFoundf("Record not found")
	}
	return uint(id), nil
}

func getLimitWithDefault(c *gin.Context, defaultValue int) int {
	limit := defaultValue
	if c.Query("limit") != "" {
		parsed, err := strconv.Atoi(c.Query("limit"))
		if err != nil || parsed < 1 {
			return defaultValue
		}
		limit = parsed
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit
}

// page holds the common list parameters.
type page struct {
	Limit  int
	Offset int
	Search string
	Status string
}

func pageFrom(c *gin.Context) page {
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return page{
		Limit:  getLimitWithDefault(c, defaultPageSize),
		Offset: offset,
		Search: strings.ToLower(strings.TrimSpace(c.Query("search"))),
		Status: strings.TrimSpace(c.Query("status")),
	}
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// filter applies search over columns and the status filter.
func (p page) filter(table string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Search != "" && len(columns) > 0 {
			pattern := "%" + likeEscaper.Replace(p.Search) + "%"
			clauses := make([]string, len(columns))
			args := make([]any, len(columns))
			for i, col := range columns {
				clauses[i] = fmt.Sprintf(`LOWER(%s.%s) LIKE ? ESCAPE '\'`, table, col)
				args[i] = pattern
			}
			db = db.Where(strings.Join(clauses, " OR "), args...)
		}
		if p.Status != "" {
			db = db.Where(table+".status = ?", p.Status)
		}
		return db
	}
}

// list counts and loads one page of query into dest.
func (p page) list(query func() *gorm.DB, order string, dest any, preloads ...string) (int64, error) {
	var total int64
	if err := query().Count(&total).Error; err != nil {
		return 0, err
	}
	q := query()
	for _, assoc := range preloads {
		q = q.Preload(assoc)
	}
	err := q.Order(order).Limit(p.Limit).Offset(p.Offset).Find(dest).Error
	return total, err
}

func (p page) body(key string, items any, total int64) gin.H {
	return gin.H{key: items, "total": total, "limit": p.Limit, "offset": p.Offset}
}

// first loads one record or reports it as missing.
func first(query *gorm.DB, dest any, what string) error {
	if err := query.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("%s not found", what)
		}
		return apperr.Wrap(err, "load "+strings.ToLower(what))
	}
	return nil
}

// translate turns storage errors into client errors where possible.
func translate(err error, conflict string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch apperr.KindOf(err) {
	case apperr.Conflict:
		return &apperr.Error{Kind: apperr.Conflict, Message: conflict, Err: err}
	case apperr.NotFound:
		return &apperr.Error{Kind: apperr.NotFound, Message: "Record not found", Err: err}
	}
	return apperr.Wrap(err, "save")
}
