package models

import (
	"time"
)

// Operator-tunable keys. Values are stored as strings.
const (
	SettingCollectMinutes   = "calls.collect_minutes"
	SettingNightFund        = "calls.night_fund"
	SettingDefaultBackRatio = "members.default_back_ratio"
	SettingPresentHours     = "members.present_hours"
	SettingInviteBonus      = "members.invite_bonus"
)

// SystemSetting overrides a configuration default at runtime.
type SystemSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }
