package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"content-eval/internal/model"
)

// advanceStatus 只向前推进状态；已处于 target 或更后面时不做任何事
func advanceStatus(ctx context.Context, db *gorm.DB, experimentID uint, target model.Status) (bool, error) {
	res := db.WithContext(ctx).
		Model(&model.Experiment{}).
		Where("id = ? AND status IN ?", experimentID, target.Before()).
		Update("status", target)
	if res.Error != nil {
		return false, fmt.Errorf("更新实验状态失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func loadExperiment(ctx context.Context, db *gorm.DB, id uint) (*model.Experiment, error) {
	var exp model.Experiment
	err := db.WithContext(ctx).First(&exp, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("experiment", id)
		}
		return nil, fmt.Errorf("查询实验失败: %w", err)
	}
	return &exp, nil
}
