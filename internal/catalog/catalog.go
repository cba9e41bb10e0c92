package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"content-eval/internal/model"
)

//go:embed tasks.yaml
var defaultTasks []byte

var ErrInvalidCatalog = errors.New("invalid task catalog")

type file struct {
	Tasks []model.Task `yaml:"tasks"`
}

// Default 内置的六个任务
func Default() ([]model.Task, error) {
	return Parse(defaultTasks)
}

// Load 读取任务目录；path 为空时使用内置目录
func Load(path string) ([]model.Task, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取任务目录失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析并校验 YAML 任务目录
func Parse(data []byte) ([]model.Task, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析任务目录失败: %w", err)
	}
	if err := validate(f.Tasks); err != nil {
		return nil, err
	}
	return f.Tasks, nil
}

func validate(tasks []model.Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrInvalidCatalog)
	}
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: task #%d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidCatalog, t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.ContentType.Valid() {
			return fmt.Errorf("%w: task %s: %w", ErrInvalidCatalog, t.ID, model.ErrInvalidContentType)
		}
		if strings.TrimSpace(t.StructuredPrompt) == "" || strings.TrimSpace(t.ExamplePromptTemplate) == "" {
			return fmt.Errorf("%w: task %s is missing a prompt", ErrInvalidCatalog, t.ID)
		}
	}
	return nil
}

// Sync 把任务写入数据库，已存在的 id 更新文本
func Sync(ctx context.Context, db *gorm.DB, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&tasks).Error
	if err != nil {
		return fmt.Errorf("同步任务目录失败: %w", err)
	}
	return nil
}
