package authz

import (
	"context"
	"io"
	"time"

	"github.com/nebryx/authz/internal/audit"
)

// Activity is one row of the activity log.
type Activity = audit.Event

// ActivityWriter persists batches of activities. It is called from a single
// background goroutine.
type ActivityWriter = audit.Writer

// ActivityWriterFunc adapts a function to ActivityWriter.
type ActivityWriterFunc = audit.WriterFunc

// Activity results.
const (
	ResultSucceed = audit.ResultSucceed
	ResultFailed  = audit.ResultFailed
	ResultDenied  = audit.ResultDenied
)

// Activity categories.
const (
	CategoryUser  = "user"
	CategoryAdmin = "admin"
)

// NewJSONActivityWriter writes one JSON object per activity to w.
func NewJSONActivityWriter(w io.Writer) ActivityWriter {
	return audit.NewJSONLinesWriter(w)
}

type activity struct {
	principal *Principal
	target    string
	category  string
	topic     string
	action    string
	result    string
	data      map[string]string
}

// emitActivity records a user-facing action. Client address and user-agent
// come from ctx.
func (e *Engine) emitActivity(ctx context.Context, a activity) {
	if e.audit == nil {
		return
	}
	category := a.category
	if category == "" {
		category = CategoryUser
	}
	ev := audit.Event{
		Timestamp: time.Now().UTC(),
		TargetUID: a.target,
		Category:  category,
		Topic:     a.topic,
		Action:    a.action,
		Result:    a.result,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Data:      a.data,
	}
	if a.principal != nil {
		ev.UserID = a.principal.ID
		ev.UID = a.principal.UID
	}
	e.audit.Emit(ctx, ev)
}
