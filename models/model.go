package models

import (
	"time"
)

// Breach is a named, dated leak source. Rows are keyed by ID and never
// rewritten once created.
type Breach struct {
	ID          uint32    `gorm:"column:breach_id;primaryKey;autoIncrement:false" json:"breach_id"`
	Name        string    `gorm:"column:breach_name;uniqueIndex;not null" json:"breach_name"`
	Date        time.Time `gorm:"column:breach_date;type:date;not null" json:"breach_date"`
	Description string    `gorm:"column:description;not null" json:"description"`
}

func (Breach) TableName() string { return "breach_metadata" }

// PasswordLeak is one occurrence of a password digest. Rows sharing
// (HashPrefix, HashSuffix) are summed by the store eventually.
type PasswordLeak struct {
	HashPrefix string `gorm:"column:hash_prefix;type:char(6);not null;index:idx_password_leaks_key,priority:1" json:"hash_prefix"`
	HashSuffix string `gorm:"column:hash_suffix;type:char(34);not null;index:idx_password_leaks_key,priority:2" json:"hash_suffix"`
	Prevalence uint64 `gorm:"column:prevalence;not null" json:"prevalence"`
}

func (PasswordLeak) TableName() string { return "password_leaks" }

// EmailLeak binds an email digest to a breach. Version is the ingestion time
// in unix seconds; the highest version wins when the store collapses
// duplicates.
type EmailLeak struct {
	EmailPrefix string `gorm:"column:email_prefix;type:char(6);not null;index:idx_email_leaks_key,priority:1" json:"email_prefix"`
	EmailSuffix string `gorm:"column:email_suffix;type:char(34);not null;index:idx_email_leaks_key,priority:2" json:"email_suffix"`
	BreachID    uint32 `gorm:"column:breach_id;not null;index:idx_email_leaks_key,priority:3" json:"breach_id"`
	Version     uint64 `gorm:"column:version;not null" json:"version"`
}

func (EmailLeak) TableName() string { return "email_leaks" }

// SuffixCount is one member of a password anonymity set.
type SuffixCount struct {
	Suffix string `gorm:"column:hash_suffix" json:"suffix"`
	Count  uint64 `gorm:"column:total_count" json:"count"`
}

type Stats struct {
	EmailCount    uint64 `json:"email_count"`
	PasswordCount uint64 `json:"password_count"`
	BreachCount   uint64 `json:"breach_count"`
}
