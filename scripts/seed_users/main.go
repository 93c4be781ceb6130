// Seeds demo user documents into the redis-backed store.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/docstore/redisstore"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	flag.Parse()

	store := redisstore.New(*redisAddr, zerolog.New(os.Stderr))
	defer store.Close()

	users := []map[string]any{
		{"id": "user1", "name": "Aman", "username": "aman", "email": "aman@example.com"},
		{"id": "user2", "name": "Bela", "username": "bela", "email": "bela@example.com"},
		{"id": "user3", "name": "Chirag", "username": "chirag", "email": "chirag@example.com"},
	}

	ctx := context.Background()
	for _, u := range users {
		id := u["id"].(string)
		u["online"] = false
		u["lastSeen"] = docstore.ServerTimestamp()
		if err := store.Set(ctx, docstore.UserDoc(id), u, false); err != nil {
			log.Fatalf("seed %s: %v", id, err)
		}
		log.Printf("seeded user %s", id)
	}
}
