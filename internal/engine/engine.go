package engine

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/config"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Codec  *auth.TokenCodec
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, codec *auth.TokenCodec) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Codec:  codec,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func taskKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ForbiddenError indicates the caller is authenticated but not allowed
// to perform the operation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}
