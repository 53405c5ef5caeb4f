package domain

import "time"

// Customer is the record carried by CUSTOMER_CREATED, CUSTOMER_UPDATED and
// CUSTOMER_VERIFIED events and returned by customer_update.
type Customer struct {
	ID         string    `json:"id" bson:"_id"`
	Email      string    `json:"email" bson:"email"`
	FirstName  string    `json:"firstName" bson:"firstName"`
	LastName   string    `json:"lastName" bson:"lastName"`
	Phone      string    `json:"phone,omitempty" bson:"phone,omitempty"`
	IsVerified bool      `json:"isVerified" bson:"isVerified"`
	Addresses  []Address `json:"addresses,omitempty" bson:"addresses,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

type Address struct {
	ID         string `json:"id" bson:"id"`
	Street     string `json:"street" bson:"street"`
	City       string `json:"city" bson:"city"`
	State      string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode string `json:"postalCode" bson:"postalCode"`
	Country    string `json:"country" bson:"country"`
	IsDefault  bool   `json:"isDefault" bson:"isDefault"`
}

type Notification struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject,omitempty"`
	Status  string    `json:"status"`
	SentAt  time.Time `json:"sentAt"`
}

// AddressAdded is the CUSTOMER_ADDRESS_ADDED payload.
type AddressAdded struct {
	CustomerID string  `json:"customerId"`
	Address    Address `json:"address"`
}

// NotificationSent is the CUSTOMER_NOTIFICATION_SENT payload.
type NotificationSent struct {
	CustomerID   string       `json:"customerId"`
	Notification Notification `json:"notification"`
}

// RegisteredUser is the USER_REGISTERED payload published by the identity service.
type RegisteredUser struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
