package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/travelmate/chat/internal/auth"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/storage/memory"
)

type seedFile struct {
	Users []seedUser `yaml:"users"`
	Trips []seedTrip `yaml:"trips"`
}

type seedUser struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Avatar string `yaml:"avatar"`
}

type seedTrip struct {
	ID          string `yaml:"id"`
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Host        string `yaml:"host"`
}

var defaultSeed = seedFile{
	Users: []seedUser{
		{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		{ID: "u2", Name: "Bob", Email: "bob@example.com"},
		{ID: "u3", Name: "Carol", Email: "carol@example.com"},
	},
	Trips: []seedTrip{
		{ID: "t1", Origin: "Oslo", Destination: "Rome", Host: "u1"},
		{ID: "t2", Origin: "Lisbon", Destination: "Porto", Host: "u2"},
	},
}

func loadSeed(path string) (seedFile, error) {
	if path == "" {
		return defaultSeed, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("read seed: %w", err)
	}
	var s seedFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return seedFile{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

func (s seedFile) apply(dir *memory.Directory) {
	for _, u := range s.Users {
		dir.PutUser(model.User{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.Avatar})
	}
	for _, t := range s.Trips {
		dir.PutTrip(model.Trip{ID: t.ID, Origin: t.Origin, Destination: t.Destination, HostID: t.Host})
	}
}

// logDevTokens prints bearer tokens for the seeded users so the API can be tried by hand.
func logDevTokens(tokens *auth.Manager, dir chat.Directory) {
	for _, u := range defaultSeed.Users {
		user, err := dir.User(context.Background(), u.ID)
		if err != nil {
			continue
		}
		tok, err := tokens.Issue(user.ID, user.Name, user.Email)
		if err != nil {
			logger.Errorf("dev token %s: %v", user.ID, err)
			continue
		}
		logger.Infof("dev token %s (%s): %s", user.ID, user.Name, tok)
	}
}
