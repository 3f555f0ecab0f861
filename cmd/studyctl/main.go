package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/credentials"
	"github.com/studyhall/sessionkit/internal/config"
	"github.com/studyhall/sessionkit/issuer"
	"github.com/studyhall/sessionkit/session"
	"github.com/studyhall/sessionkit/study"
	"github.com/studyhall/sessionkit/transport"
)

const usage = `usage: studyctl <command> [args]

commands:
  login <identifier>   sign in (secret read from stdin)
  logout               sign out locally and notify the identity service
  status               print the current session state
  whoami               print the signed-in user
  due                  list cards due for review
  rate <card> <0-5>    submit a review rating
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "studyctl: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("command required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credPath := cfg.Session.CredentialFile
	if credPath == "" {
		if credPath, err = defaultCredentialPath(); err != nil {
			return err
		}
	}

	store := credentials.NewFileStore(credPath, credentials.WithLogger(logger))
	iss := issuer.New(cfg.Identity.URL,
		issuer.WithTimeout(cfg.Identity.Timeout),
		issuer.WithLogger(logger),
	)
	manager, err := session.NewManager(store, iss,
		session.WithRenewalMargin(cfg.Session.RenewalMargin),
		session.WithKeepAliveInterval(cfg.Session.KeepAliveInterval),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := manager.Initialize(ctx); err != nil {
		return err
	}

	interceptor, err := transport.New(manager, transport.WithLogger(logger))
	if err != nil {
		return err
	}
	api, err := study.New(cfg.Platform.URL, interceptor.Client(), study.WithLogger(logger))
	if err != nil {
		return err
	}

	switch args[0] {
	case "login":
		return login(ctx, manager, args[1:])
	case "logout":
		return manager.Logout(ctx)
	case "status":
		fmt.Println(manager.CurrentState())
		return nil
	case "whoami":
		return whoami(manager)
	case "due":
		return listDue(ctx, api)
	case "rate":
		return rate(ctx, api, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.Errorf("unknown command %q", args[0])
	}
}

func login(ctx context.Context, manager *session.Manager, args []string) error {
	if len(args) != 1 {
		return errors.New("login requires an identifier")
	}
	displayAppname()

	fmt.Print("secret: ")
	reader := bufio.NewReader(os.Stdin)
	secret, err := reader.ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "read secret")
	}

	if err := manager.Login(ctx, args[0], strings.TrimSpace(secret)); err != nil {
		return err
	}
	if user, ok := manager.CurrentUser(); ok && user.Name != "" {
		fmt.Printf("signed in as %s\n", user.Name)
	} else {
		fmt.Println("signed in")
	}
	return nil
}

func whoami(manager *session.Manager) error {
	user, ok := manager.CurrentUser()
	if !ok {
		return errors.New("not signed in")
	}
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
	return nil
}

func listDue(ctx context.Context, api *study.Client) error {
	cards, err := api.DueCards(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Println("nothing due")
		return nil
	}
	for _, card := range cards {
		fmt.Printf("%s\t%s\n", card.ID, card.Prompt)
	}
	return nil
}

func rate(ctx context.Context, api *study.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("rate requires a card id and a rating")
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Wrap(err, "parse rating")
	}
	result, err := api.SubmitRating(ctx, args[0], rating)
	if err != nil {
		return err
	}
	fmt.Printf("next review %s\n", result.NextDueAt.Format("2006-01-02 15:04"))
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, errors.Wrap(err, "parse log level")
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).With().Timestamp().Logger().Level(lvl), nil
}

func defaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve config dir")
	}
	return filepath.Join(dir, "studyhall", "credentials.json"), nil
}

func displayAppname() {
	myFigure := figure.NewFigure("StudyHall", "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
