package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nebryx/authz"
	"gorm.io/gorm"
)

const defaultActivityBatchSize = 100

// ActivityWriter persists activity batches with multi-row inserts.
type ActivityWriter struct {
	db        *gorm.DB
	batchSize int
}

var _ authz.ActivityWriter = (*ActivityWriter)(nil)

func (w *ActivityWriter) WriteBatch(ctx context.Context, events []authz.Activity) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]activityModel, 0, len(events))
	for _, ev := range events {
		row := activityModel{
			UserID:    ev.UserID,
			TargetUID: optional(ev.TargetUID),
			Category:  ev.Category,
			UserIP:    ev.IP,
			UserAgent: ev.UserAgent,
			Topic:     ev.Topic,
			Action:    ev.Action,
			Result:    ev.Result,
			CreatedAt: ev.Timestamp,
		}
		if len(ev.Data) > 0 {
			raw, err := json.Marshal(ev.Data)
			if err != nil {
				return fmt.Errorf("encode activity data: %w", err)
			}
			data := string(raw)
			row.Data = &data
		}
		rows = append(rows, row)
	}

	size := w.batchSize
	if size <= 0 {
		size = defaultActivityBatchSize
	}
	if err := w.db.WithContext(ctx).CreateInBatches(rows, size).Error; err != nil {
		return fmt.Errorf("insert activities: %w", err)
	}
	return nil
}
