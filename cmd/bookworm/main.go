package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bookworm/internal/books"
	"bookworm/internal/config"
	"bookworm/internal/feed"
	"bookworm/internal/gateway"
	"bookworm/internal/session"
	"bookworm/internal/theme"
	"bookworm/internal/util"
	"bookworm/pkg/kv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("BOOKWORM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	timeout, err := config.ParseRequestTimeout(cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("failed to parse request timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var kvStore kv.Store
	if cfg.RedisAddr != "" {
		kvStore = kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, "")
	} else {
		kvStore, err = kv.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to init storage: %v", err)
		}
	}

	gwOpts := []gateway.Option{gateway.WithLogger(logger)}
	if timeout > 0 {
		gwOpts = append(gwOpts, gateway.WithTimeout(timeout))
	}
	gw := gateway.New(cfg.BaseURL, gwOpts...)
	sess := session.New(kvStore, gw, logger)
	gw.SetTokenSource(sess)

	themes := theme.NewStore(kvStore, logger)
	ctx := context.Background()
	themes.Load(ctx)
	sess.CheckAuth(ctx)

	loaderOpts := []feed.LoaderOption{feed.WithLogger(logger)}
	if cfg.PageSize > 0 {
		loaderOpts = append(loaderOpts, feed.WithPageSize(cfg.PageSize))
	}
	app := &shell{
		logger:  logger,
		session: sess,
		books:   books.NewClient(gw),
		themes:  themes,
		feed:    feed.NewLoader(gw, feed.ScopeAll, loaderOpts...),
		mine:    feed.NewLoader(gw, feed.ScopeMine, loaderOpts...),
	}

	if app.session.User() != nil {
		app.prefetch(ctx)
	}
	app.run(ctx)
}

type shell struct {
	logger  *slog.Logger
	session *session.Store
	books   *books.Client
	themes  *theme.Store
	feed    *feed.Loader
	mine    *feed.Loader
}

// prefetch warms both cursors in parallel; they own disjoint state and need
// no ordering between them.
func (s *shell) prefetch(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.feed.Refresh(gctx)
		return nil
	})
	g.Go(func() error {
		s.mine.Refresh(gctx)
		return nil
	})
	_ = g.Wait()
}

func (s *shell) run(ctx context.Context) {
	if user := s.session.User(); user != nil {
		fmt.Printf("logged in as %s\n", user.Username)
	} else {
		fmt.Println("not logged in; use: login <email> <password>")
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) > 0 {
			if args[0] == "exit" || args[0] == "quit" {
				return
			}
			s.dispatch(ctx, args)
		}
		fmt.Print("> ")
	}
}

func (s *shell) dispatch(ctx context.Context, args []string) {
	switch args[0] {
	case "help":
		fmt.Println(`commands:
  login <email> <password>
  register <username> <email> <password>
  logout
  whoami
  feed | mine        show a listing
  next [mine]        load the next page
  refresh [mine]     restart from page 1
  post <title> <rating> <image-path> <description...>
  delete <id>
  theme [name]
  exit`)
	case "login":
		if len(args) != 3 {
			fmt.Println("usage: login <email> <password>")
			return
		}
		res := s.session.Login(ctx, args[1], args[2])
		if !res.Success {
			fmt.Printf("login failed: %s\n", res.Error)
			return
		}
		fmt.Printf("welcome back, %s\n", s.session.User().Username)
		s.prefetch(ctx)
	case "register":
		if len(args) != 4 {
			fmt.Println("usage: register <username> <email> <password>")
			return
		}
		res := s.session.Register(ctx, args[1], args[2], args[3])
		if !res.Success {
			fmt.Printf("registration failed: %s\n", res.Error)
			return
		}
		fmt.Printf("welcome, %s\n", s.session.User().Username)
		s.prefetch(ctx)
	case "logout":
		if err := s.session.LogOut(ctx); err != nil {
			fmt.Printf("logout: %v\n", err)
			return
		}
		fmt.Println("logged out")
	case "whoami":
		user := s.session.User()
		if user == nil {
			fmt.Println("not logged in")
			return
		}
		fmt.Printf("%s <%s>\n", user.Username, user.Email)
		if exp, ok := s.session.ExpiresAt(); ok {
			fmt.Printf("session expires %s\n", exp.Format("2006-01-02 15:04"))
		}
	case "feed":
		s.printListing(s.feed, "feed")
	case "mine":
		s.printListing(s.mine, "your books")
	case "next":
		loader := s.feed
		if len(args) > 1 && args[1] == "mine" {
			loader = s.mine
		}
		loader.NextPage(ctx)
		s.printListing(loader, "listing")
	case "refresh":
		loader := s.feed
		if len(args) > 1 && args[1] == "mine" {
			loader = s.mine
		}
		loader.Refresh(ctx)
		s.printListing(loader, "listing")
	case "post":
		s.post(ctx, args[1:])
	case "delete":
		if len(args) != 2 {
			fmt.Println("usage: delete <id>")
			return
		}
		if err := s.books.Delete(ctx, args[1]); err != nil {
			fmt.Printf("delete failed: %v\n", err)
			return
		}
		s.mine.Remove(args[1])
		s.feed.Remove(args[1])
		fmt.Println("deleted")
	case "theme":
		if len(args) < 2 {
			fmt.Printf("current theme: %s\n", s.themes.Colors().Name)
			return
		}
		palette, ok := theme.PaletteByName(args[1])
		if !ok {
			fmt.Printf("unknown theme %q (ocean, forest, sunset, midnight)\n", args[1])
			return
		}
		if err := s.themes.SetColors(ctx, palette); err != nil {
			fmt.Printf("save theme: %v\n", err)
			return
		}
		fmt.Printf("theme set to %s\n", palette.Name)
	default:
		fmt.Printf("unknown command %q (try help)\n", args[0])
	}
}

func (s *shell) post(ctx context.Context, args []string) {
	if len(args) < 4 {
		fmt.Println("usage: post <title> <rating> <image-path> <description...>")
		return
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("rating must be a number from 1 to 5")
		return
	}
	file, err := os.Open(args[2])
	if err != nil {
		fmt.Printf("open image: %v\n", err)
		return
	}
	defer file.Close()

	name := filepath.Base(args[2])
	if name == "." || name == string(os.PathSeparator) {
		name = "upload_" + util.NewID() + ".jpg"
	}
	created, err := s.books.Create(ctx, books.CreateInput{
		Title:       args[0],
		Description: strings.Join(args[3:], " "),
		Rating:      rating,
		ImageName:   name,
		Image:       file,
	})
	if err != nil {
		fmt.Printf("post failed: %v\n", err)
		return
	}
	fmt.Printf("shared %q (id %s)\n", created.Title, created.ID)
	s.mine.Refresh(ctx)
}

func (s *shell) printListing(l *feed.Loader, label string) {
	items := l.Books()
	if len(items) == 0 {
		fmt.Printf("%s: empty (try refresh)\n", label)
		return
	}
	fmt.Printf("%s (%d books):\n", label, len(items))
	for _, b := range items {
		fmt.Printf("  %-24s %s %-16s by %s\n", b.ID, stars(b.Rating), b.Title, b.User.Username)
	}
	if l.HasMore() {
		fmt.Println("  ... more available (next)")
	}
}

func stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("*", rating) + strings.Repeat("-", 5-rating)
}
