package models

import "time"

type Listing struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Address   string    `yaml:"address" json:"address"`
	Agent     Agent     `yaml:"agent" json:"agent"`
	IsActive  bool      `yaml:"is_active" json:"isActive"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}
