package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// User is the account document shared with the REST and SMTP layers.
// Password carries the bcrypt hash and is never sent over the socket.
type User struct {
	ID        string   `bson:"-" json:"id"`
	Username  string   `bson:"username" json:"username"`
	Password  string   `bson:"password" json:"-"`
	FirstName string   `bson:"firstName" json:"firstName"`
	LastName  string   `bson:"lastName" json:"lastName"`
	Mailboxes []string `bson:"mailboxes" json:"mailboxes"`
	TFA       bool     `bson:"tfa" json:"tfa"`
	IsAdmin   bool     `bson:"isAdmin" json:"isAdmin"`
}

// SetPassword hashes and stores the given plaintext password.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// ValidID reports whether s is a well-formed document id (hex ObjectID).
func ValidID(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}
