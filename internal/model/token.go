package model

import "time"

// AccessToken 是已签发 bearer token 的服务端记录。
//
// ID 与 token 中的 jti 相同；只保存 token 的 SHA-256 哈希。删除该行即吊销 token。
type AccessToken struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     uint   `gorm:"not null;index"`
	Name       string `gorm:"type:varchar(64);not null"`
	TokenHash  string `gorm:"size:64;uniqueIndex;not null"`
	Abilities  string `gorm:"type:varchar(255);not null"`
	LastUsedAt *time.Time
	ExpiresAt  time.Time `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
