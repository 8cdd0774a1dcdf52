package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"medialink-client-go/internal/bootstrap"
	"medialink-client-go/internal/domain/eventbus"
	"medialink-client-go/internal/domain/pairing"
	"medialink-client-go/internal/domain/session/model"
)

const usage = `medialink-client <command> [args]

Commands:
  resolve <address>              probe an address and store the winning server
  login <identifier> <password>  authenticate against the stored server
  logout                         invalidate the session (always clears locally)
  pair                           start device-code pairing against the stored server
  status                         show the current session state
  reset                          forget the server and all credentials
`

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		os.Exit(2)
	}

	ctx := context.Background()
	engine, err := bootstrap.NewEngine(ctx, bootstrap.Options{ConfigPath: *configPath})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "medialink-client failed to start: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close(ctx)

	if err := run(ctx, engine, args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, engine *bootstrap.Engine, args []string) error {
	switch args[0] {
	case "resolve":
		if len(args) != 2 {
			return fmt.Errorf("usage: resolve <address>")
		}
		return resolve(ctx, engine, args[1])
	case "login":
		if len(args) != 3 {
			return fmt.Errorf("usage: login <identifier> <password>")
		}
		return login(ctx, engine, args[1], args[2])
	case "logout":
		engine.Session.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "pair":
		return pair(ctx, engine)
	case "status":
		return status(ctx, engine)
	case "reset":
		engine.Session.ClearServerConfig(ctx)
		fmt.Println("configuration cleared")
		return nil
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func resolve(ctx context.Context, engine *bootstrap.Engine, address string) error {
	server, err := engine.Resolver.Resolve(ctx, address)
	if err != nil {
		return err
	}
	if err := engine.Session.SetServer(ctx, server); err != nil {
		return err
	}
	fmt.Printf("server: %s\n", server.BaseURL)
	return nil
}

func login(ctx context.Context, engine *bootstrap.Engine, identifier, password string) error {
	profile, err := engine.Session.Login(ctx, identifier, password)
	if err != nil {
		return err
	}
	if profile != nil {
		fmt.Printf("logged in as %s\n", profile.Username)
	}
	return nil
}

func pair(ctx context.Context, engine *bootstrap.Engine) error {
	server := engine.Session.Server(ctx)
	if server == nil {
		return fmt.Errorf("no server configured, run resolve first")
	}

	lastState := ""
	onUpdate := func(data eventbus.PairingEventData) {
		if data.State != lastState {
			lastState = data.State
			fmt.Printf("\npairing: %s\n", data.State)
		}
	}
	if err := eventbus.Subscribe(eventbus.EventPairingState, onUpdate); err != nil {
		return err
	}
	defer eventbus.Unsubscribe(eventbus.EventPairingState, onUpdate)

	if err := engine.Pairing.Start(ctx, *server); err != nil {
		return err
	}

	snap := engine.Pairing.Snapshot()
	fmt.Printf("enter code %s on another device\n", snap.UserCode)

	lastRemaining := -1
	for {
		snap = engine.Pairing.Snapshot()
		if snap.State.Terminal() {
			break
		}
		if snap.RemainingSeconds != lastRemaining {
			fmt.Printf("\rwaiting for authorization... %3ds ", snap.RemainingSeconds)
			lastRemaining = snap.RemainingSeconds
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println()

	switch {
	case snap.State == pairing.StateAuthorized:
		fmt.Println("device authorized")
		return nil
	case snap.Message != "":
		return fmt.Errorf("pairing %s: %s", snap.State, snap.Message)
	default:
		return fmt.Errorf("pairing %s", snap.State)
	}
}

func status(ctx context.Context, engine *bootstrap.Engine) error {
	state := engine.Session.CheckAuth(ctx)
	fmt.Printf("state: %s\n", state)

	if server := engine.Session.Server(ctx); server != nil {
		fmt.Printf("server: %s\n", server.BaseURL)
	}
	if state == model.StateAuthenticated {
		if profile := engine.Session.Profile(ctx); profile != nil {
			fmt.Printf("user: %s (%s)\n", profile.Username, profile.Role)
		}
	}
	return nil
}
