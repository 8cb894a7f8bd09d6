package models

import "strings"

// Item is a bulky object to be collected. Items compare by value.
type Item struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// NewItem validates the name; an empty description is allowed.
func NewItem(name, description string) (Item, error) {
	if strings.TrimSpace(name) == "" {
		return Item{}, ErrItemNameRequired
	}
	return Item{Name: name, Description: description}, nil
}
