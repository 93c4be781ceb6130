// Terminal chat client for exercising the sync engine against any of the
// store backends.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/config"
	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/docstore/memstore"
	"github.com/mahaj/convosync/pkg/docstore/redisstore"
	"github.com/mahaj/convosync/pkg/docstore/wsstore"
	"github.com/mahaj/convosync/pkg/engine"
	"github.com/mahaj/convosync/pkg/errs"
	"github.com/mahaj/convosync/pkg/media"
	"github.com/mahaj/convosync/pkg/model"
	"github.com/mahaj/convosync/pkg/objectstore"
	"github.com/mahaj/convosync/pkg/session"
)

func main() {
	email := flag.String("email", "", "email to sign in with")
	password := flag.String("password", "", "password to sign in with")
	userID := flag.String("user", "user1", "user id (offline mem backend only)")
	peerID := flag.String("peer", "user2", "peer user id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Sign in unless running against the offline in-memory backend.
	sess := session.New(cfg.AuthURL, log)
	self := model.User{ID: *userID, Name: *userID}
	if cfg.Backend != "mem" {
		if *email == "" {
			fmt.Fprintln(os.Stderr, "-email and -password are required for backend", cfg.Backend)
			os.Exit(1)
		}
		user, err := sess.SignIn(ctx, *email, *password)
		if err != nil {
			log.Fatal().Err(err).Msg("sign in failed")
		}
		self = *user
	}
	peer := model.User{ID: *peerID, Name: *peerID}

	store, err := openStore(ctx, cfg, sess, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store connect failed")
	}
	defer store.Close()

	blobs := objectstore.NewClient(cfg.StorageURL, cfg.StorageKey, log)
	pipeline := media.NewPipeline(blobs, cfg.StorageBucket, log)

	sesh, err := engine.Open(ctx, store, pipeline, self, peer, log, engine.Options{
		TypingDebounce:  cfg.TypingDebounce,
		TypingStaleness: cfg.TypingStaleness,
		OnMessages:      func(msgs []model.Message) { render(self.ID, msgs) },
		OnMeta: func(meta model.ConversationMeta) {
			if peers := meta.TypingUsers(self.ID, nowMS(), cfg.TypingStaleness.Milliseconds()); len(peers) > 0 {
				fmt.Printf("\r%s is typing...\n> ", strings.Join(peers, ", "))
			}
		},
		OnError: func(err error) { log.Error().Err(err).Msg("live feed lost") },
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open conversation failed")
	}
	defer sesh.Close(context.Background())

	fmt.Printf("chatting as %s with %s (backend: %s)\n", self.ID, peer.ID, cfg.Backend)
	fmt.Println("commands: /reply <id> <text>, /react <id> <emoji>, /edit <id> <text>, /delme <id>, /delall <id>, /img <path>, /audio <path>, /video <path>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			return
		}
		dispatch(ctx, sesh, line)
		fmt.Print("> ")
	}
}

func dispatch(ctx context.Context, sesh *engine.Session, line string) {
	co := sesh.Coordinator()

	if !strings.HasPrefix(line, "/") {
		sesh.StoppedTyping(ctx)
		if _, err := co.Send(ctx, line, nil); err != nil {
			report(err)
		}
		return
	}

	parts := strings.SplitN(line, " ", 3)
	cmd := parts[0]
	arg := func(i int) string {
		if len(parts) > i {
			return parts[i]
		}
		return ""
	}

	var err error
	switch cmd {
	case "/reply":
		ref, ok := co.ReplyRefTo(arg(1))
		if !ok {
			fmt.Println("no such message:", arg(1))
			return
		}
		_, err = co.Send(ctx, arg(2), ref)
	case "/react":
		err = co.React(ctx, arg(1), arg(2))
	case "/edit":
		err = co.EditText(ctx, arg(1), arg(2))
	case "/delme":
		err = co.DeleteForMe(ctx, arg(1))
	case "/delall":
		err = co.DeleteForEveryone(ctx, arg(1))
	case "/img":
		_, err = co.SendMedia(ctx, arg(1), model.MediaImage, arg(2))
	case "/audio":
		_, err = co.SendMedia(ctx, arg(1), model.MediaAudio, arg(2))
	case "/video":
		_, err = co.SendMedia(ctx, arg(1), model.MediaVideo, arg(2))
	case "/typing":
		// Simulate composer input for the typing indicator.
		sesh.InputChanged(ctx, arg(1))
	default:
		fmt.Println("unknown command:", cmd)
		return
	}
	if err != nil {
		report(err)
	}
}

func report(err error) {
	switch errs.KindOf(err) {
	case errs.Validation:
		fmt.Println("rejected:", err)
	default:
		fmt.Println("operation failed:", err)
	}
}

func render(selfID string, msgs []model.Message) {
	fmt.Print("\r")
	for _, m := range msgs {
		marker := " "
		switch m.Status {
		case model.StatusSending:
			marker = "…"
		case model.StatusFailed:
			marker = "!"
		case model.StatusRead:
			marker = "✓✓"
		}
		who := m.SenderID
		if m.SenderID == selfID {
			who = "me"
		}
		text := m.Text
		if m.HasMedia() && text == "" {
			text = "[" + string(m.MediaType) + "] " + m.MediaURL
		}
		if m.ReplyTo != nil {
			text = fmt.Sprintf("(re %s: %.20s) %s", m.ReplyTo.SenderName, m.ReplyTo.Text, text)
		}
		if len(m.Reactions) > 0 {
			var emojis []string
			for _, e := range m.Reactions {
				emojis = append(emojis, e)
			}
			text += "  " + strings.Join(emojis, "")
		}
		fmt.Printf("[%s]%s %s: %s\n", shortID(m.ID), marker, who, text)
	}
	fmt.Print("> ")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

func openStore(ctx context.Context, cfg config.Config, sess *session.Session, log zerolog.Logger) (docstore.Store, error) {
	switch cfg.Backend {
	case "redis":
		return redisstore.New(cfg.RedisAddr, log), nil
	case "ws":
		token, err := sess.Token()
		if err != nil {
			return nil, err
		}
		return wsstore.Dial(ctx, cfg.GatewayURL, token, log)
	default:
		return memstore.New(), nil
	}
}
