package sqlite

import "time"

type userRow struct {
	ID    string `gorm:"primaryKey"`
	Name  string
	Email string `gorm:"not null"`
	Phone string
}

func (userRow) TableName() string { return "users" }

type domainRow struct {
	ID          string  `gorm:"primaryKey"`
	Name        string  `gorm:"uniqueIndex;not null"`
	UserID      string  `gorm:"index;not null"`
	User        userRow `gorm:"foreignKey:UserID"`
	ExpiryDate  time.Time
	Status      string `gorm:"index;not null;default:active"`
	CreatedAt   time.Time
	Certificate *certificateRow `gorm:"foreignKey:DomainID"`
}

func (domainRow) TableName() string { return "domains" }

type certificateRow struct {
	DomainID    string `gorm:"primaryKey"`
	Issuer      string
	ValidFrom   time.Time
	ValidUntil  time.Time
	Status      string
	LastChecked time.Time
}

func (certificateRow) TableName() string { return "ssl_certificates" }

type alertRuleRow struct {
	ID               string `gorm:"primaryKey"`
	DomainID         string `gorm:"index:idx_alert_domain_type;not null"`
	AlertType        string `gorm:"index:idx_alert_domain_type;not null"`
	DaysBeforeExpiry int    `gorm:"not null"`
	EmailEnabled     bool
	SMSEnabled       bool
	CreatedAt        time.Time
}

func (alertRuleRow) TableName() string { return "alerts" }

type notificationRow struct {
	ID           string `gorm:"primaryKey"`
	DomainID     string `gorm:"index:idx_notification_recent;not null"`
	AlertType    string `gorm:"index:idx_notification_recent;not null"`
	Method       string `gorm:"not null"`
	Status       string `gorm:"not null"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"index:idx_notification_recent;not null"`
}

func (notificationRow) TableName() string { return "notification_logs" }
