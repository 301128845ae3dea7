package models

import "time"

// 实体类型
const (
	KindSignal = "signal"
	KindUser   = "user"
)

// StoreEntity 通用实体表
// 复合主键 (kind, entity_id)，kind 上带二级索引用于按类型批量加载
type StoreEntity struct {
	Kind     string `gorm:"primaryKey;type:varchar(16);index:idx_kind;comment:实体类型" json:"kind"`
	EntityID string `gorm:"primaryKey;type:varchar(64);column:entity_id;comment:实体ID" json:"entity_id"`

	// 实体内容，JSON 序列化；金额字段以字符串存储避免精度丢失
	Payload string `gorm:"type:json;not null" json:"payload"`

	CreatedAt time.Time `gorm:"autoCreateTime;comment:首次写入时间" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;comment:最近写入时间" json:"updated_at"`
}

// TableName 指定表名
func (StoreEntity) TableName() string {
	return "store_entities"
}
