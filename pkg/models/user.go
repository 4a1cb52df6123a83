package models

import (
	"time"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Age       int       `json:"age"`
	Number    string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"number"`
	Password  string    `gorm:"type:varchar(100);not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Owner is the public identity joined into admin order views.
type Owner struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

func (u *User) Owner() *Owner {
	return &Owner{ID: u.ID, Name: u.Name, Number: u.Number}
}
