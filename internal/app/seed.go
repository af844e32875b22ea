package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"chatline/internal/storage"
)

// SeedUser is one demo account.
type SeedUser struct {
	Email      string `json:"email"`
	Fullname   string `json:"fullname"`
	Password   string `json:"password"`
	ProfilePic string `json:"profilePic"`
}

// DemoUsers is the built-in set used when no seed file is given.
var DemoUsers = []SeedUser{
	{Email: "priya.sharma@example.com", Fullname: "Priya Sharma", Password: "123456", ProfilePic: "https://randomuser.me/api/portraits/women/1.jpg"},
	{Email: "neha.patel@example.com", Fullname: "Neha Patel", Password: "123456", ProfilePic: "https://randomuser.me/api/portraits/women/2.jpg"},
	{Email: "arjun.mehta@example.com", Fullname: "Arjun Mehta", Password: "123456", ProfilePic: "https://randomuser.me/api/portraits/men/1.jpg"},
	{Email: "rahul.kumar@example.com", Fullname: "Rahul Kumar", Password: "123456", ProfilePic: "https://randomuser.me/api/portraits/men/2.jpg"},
}

// LoadSeedFile reads a JSON array of SeedUser.
func LoadSeedFile(path string) ([]SeedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var users []SeedUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return users, nil
}

// SeedUsers creates the given accounts, skipping emails that already exist.
// It returns how many were created.
func SeedUsers(ctx context.Context, store *storage.Store, users []SeedUser) (int, error) {
	created := 0
	for _, u := range users {
		if u.Email == "" || u.Password == "" {
			return created, fmt.Errorf("seed user %q: email and password are required", u.Fullname)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		id, err := store.CreateUser(ctx, u.Email, u.Fullname, hash)
		if errors.Is(err, storage.ErrUserExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create %s: %w", u.Email, err)
		}
		if u.ProfilePic != "" {
			if err := store.UpdateProfilePic(ctx, id, u.ProfilePic); err != nil {
				return created, fmt.Errorf("set picture for %s: %w", u.Email, err)
			}
		}
		created++
	}
	return created, nil
}
