package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a dispatch report does not exist.
	ErrNotFound = errors.New("dispatch not found")
)

type DispatchRepository struct {
	*pg.DB
}

func NewDispatchRepository(db *pg.DB) *DispatchRepository {
	return &DispatchRepository{
		db,
	}
}

// Create stores the report and its results in one transaction. Missing id
// and creation time are filled in.
func (r *DispatchRepository) Create(ctx context.Context, report *model.DispatchReport) (*model.DispatchReport, error) {
	entity := toDispatchEntity(report)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
		for _, res := range entity.Results {
			res.DispatchID = entity.ID
		}
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.Write(ctx).Create(entity).Error
	})
	if err != nil {
		return nil, err
	}
	return toDispatchModel(entity), nil
}

func (r *DispatchRepository) Get(ctx context.Context, id string) (*model.DispatchReport, error) {
	var entity DispatchEntity
	err := r.Read(ctx).
		Preload("Results", orderByPosition).
		Where("id = ?", id).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDispatchModel(&entity), nil
}

func (r *DispatchRepository) List(ctx context.Context, f model.DispatchFilter) ([]*model.DispatchReport, int64, error) {
	q := r.filtered(ctx, f)

	// Count before pagination
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := max(f.Offset, 0)

	var entities []*DispatchEntity
	err := q.Preload("Results", orderByPosition).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entities).Error
	if err != nil {
		return nil, 0, err
	}
	return toDispatchModels(entities), total, nil
}

type channelStatsRow struct {
	Channel    string
	Dispatches int64
	Messages   int64
	Succeeded  int64
	Failed     int64
}

func (r *DispatchRepository) Stats(ctx context.Context, f model.DispatchFilter) (*model.DispatchStats, error) {
	var rows []channelStatsRow
	err := r.filtered(ctx, f).
		Select(`
            channel,
            COUNT(*)                            AS dispatches,
            COALESCE(SUM(processed), 0)         AS messages,
            COALESCE(SUM(succeeded_count), 0)   AS succeeded,
            COALESCE(SUM(failed_count), 0)      AS failed
        `).
		Group("channel").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &model.DispatchStats{ByChannel: make(map[model.Channel]int64, len(rows))}
	for _, row := range rows {
		stats.Dispatches += row.Dispatches
		stats.Messages += row.Messages
		stats.Succeeded += row.Succeeded
		stats.Failed += row.Failed
		stats.ByChannel[model.Channel(row.Channel)] = row.Dispatches
	}
	return stats, nil
}

func (r *DispatchRepository) filtered(ctx context.Context, f model.DispatchFilter) *gorm.DB {
	q := r.Read(ctx).Model(&DispatchEntity{})
	if f.Channel != "" {
		q = q.Where("channel = ?", string(f.Channel))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	return q
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
