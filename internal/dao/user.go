package dao

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sigwatch/sigwatch-monitor/internal/models"
)

// 用户记录里存放通知接收键的字段名
const UserKeyPushover = "pushover_key"

// UserDAO 每归属人一条不透明的小型 KV 记录
type UserDAO struct {
	db *gorm.DB
}

var (
	_user     *UserDAO
	_userOnce sync.Once
)

// InitUserDAO 初始化 UserDAO
func InitUserDAO(db *gorm.DB) {
	_userOnce.Do(func() {
		_user = NewUserDAO(db)
	})
}

// Users 获取 UserDAO 单例
func Users() *UserDAO {
	return _user
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{db: db}
}

// Get 读取归属人记录，不存在时返回空 map
func (d *UserDAO) Get(owner string) (map[string]string, error) {
	var row models.StoreEntity
	err := d.db.Where("kind = ? AND entity_id = ?", models.KindUser, owner).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user data for %s failed: %w", owner, err)
	}

	data := map[string]string{}
	if err = json.Unmarshal([]byte(row.Payload), &data); err != nil {
		return nil, fmt.Errorf("unmarshal user data for %s failed: %w", owner, err)
	}
	return data, nil
}

// Set 整体覆盖归属人记录
func (d *UserDAO) Set(owner string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal user data for %s failed: %w", owner, err)
	}

	entity := &models.StoreEntity{
		Kind:      models.KindUser,
		EntityID:  owner,
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	}

	if err = d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(entity).Error; err != nil {
		return fmt.Errorf("save user data for %s failed: %w", owner, err)
	}
	return nil
}
