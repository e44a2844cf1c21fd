package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/model"
	"github.com/relaychat/server/internal/store/postgres"
)

func main() {
	log.Println("Starting database seed...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zap.NewNop()
	db, err := postgres.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	log.Println("Creating users...")
	usernames := []string{"alice", "bob", "charlie", "diana", "evan"}

	var createdUsers []*model.User
	for _, username := range usernames {
		user := &model.User{Username: username}
		if err := db.Users().Create(ctx, user); err != nil {
			log.Printf("User %s might already exist: %v", username, err)
			existing, _ := db.Users().GetByUsername(ctx, username)
			if existing != nil {
				createdUsers = append(createdUsers, existing)
			}
			continue
		}
		createdUsers = append(createdUsers, user)
		log.Printf("Created user: %s", username)
	}

	if len(createdUsers) < 2 {
		log.Println("Not enough users, skipping room and message creation")
		return
	}

	log.Println("Creating rooms...")
	roomNames := []struct {
		name       string
		ownerIndex int
	}{
		{"general", 0},
		{"tech-talk", 1},
		{"random", 2},
	}

	var createdRooms []*model.Room
	for _, r := range roomNames {
		if r.ownerIndex >= len(createdUsers) {
			continue
		}
		room := &model.Room{Name: r.name, CreatedBy: createdUsers[r.ownerIndex].ID}
		if err := db.Rooms().Create(ctx, room); err != nil {
			log.Printf("Room %s might already exist: %v", r.name, err)
			continue
		}
		createdRooms = append(createdRooms, room)
		log.Printf("Created room: %s", r.name)

		owner := createdUsers[r.ownerIndex]
		if err := db.Memberships().Join(ctx, &model.Membership{
			RoomID: room.ID, UserID: owner.ID, Username: owner.Username,
		}); err != nil {
			log.Printf("Failed to add owner to room %s: %v", r.name, err)
		}
	}

	log.Println("Adding members to rooms...")
	for _, room := range createdRooms {
		for i, user := range createdUsers {
			if user.ID == room.CreatedBy {
				continue
			}
			if i%2 != 0 {
				continue
			}
			if err := db.Memberships().Join(ctx, &model.Membership{
				RoomID: room.ID, UserID: user.ID, Username: user.Username,
			}); err != nil {
				log.Printf("Failed to add %s to room %s: %v", user.Username, room.Name, err)
				continue
			}
			log.Printf("Added %s to room %s", user.Username, room.Name)
		}
	}

	log.Println("Creating messages...")
	messages := []struct {
		roomIndex int
		userIndex int
		content   string
	}{
		{0, 0, "hey everyone, welcome to the room!"},
		{0, 1, "hello everyone!"},
		{0, 2, "glad to be here"},
		{1, 1, "anyone using anything new lately?"},
		{1, 0, "been learning Go recently"},
		{1, 2, "goroutines are genuinely great"},
		{2, 2, "nice weather today"},
	}

	for _, m := range messages {
		if m.roomIndex >= len(createdRooms) || m.userIndex >= len(createdUsers) {
			continue
		}
		room := createdRooms[m.roomIndex]
		user := createdUsers[m.userIndex]
		msg := &model.Message{
			RoomID:   room.ID,
			UserID:   user.ID,
			Username: user.Username,
			Content:  m.content,
			Kind:     model.KindUser,
		}
		if err := db.Messages().Create(ctx, msg); err != nil {
			log.Printf("Failed to create message: %v", err)
			continue
		}
		log.Printf("Created message in %s", room.Name)
		time.Sleep(10 * time.Millisecond)
	}

	log.Println("Seed completed successfully!")
	log.Println("Reconnect with any of the seeded usernames: alice, bob, charlie, diana, evan")
}
