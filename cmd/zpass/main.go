package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zapp"

	"github.com/zarlcorp/zpass/internal/attest"
	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/cli"
	"github.com/zarlcorp/zpass/internal/config"
	"github.com/zarlcorp/zpass/internal/tui"
)

// version is set at build time via ldflags.
var version = "dev"

const usage = `usage: zpass [command]

commands:
  status [address] [--json]       show the passport held by an address
  mint --name N --place P --dob D issue a passport for the configured wallet
  attest [--country C] [--recipient 0x..] [--time T]
                                  record an arrival attestation
  encode [--country C] [--time T] print the encoded arrival payload
  version                         print the version

mint and attest ask before signing unless --yes is given.
with no command, zpass starts the interactive interface.
`

func main() {
	app := zapp.New(zapp.WithName("zpass"))

	ctx, cancel := zapp.SignalContext(context.Background())
	defer cancel()

	net, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zpass: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		runCLI(ctx, net, os.Args[1], os.Args[2:])
		_ = app.Close()
		return
	}

	if err := runTUI(ctx, net); err != nil {
		slog.Error("tui", "err", err)
		_ = app.Close()
		os.Exit(1)
	}

	if err := app.Close(); err != nil {
		slog.Error("shutdown", "err", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, net config.Network, cmd string, args []string) {
	switch cmd {
	case "version":
		fmt.Printf("zpass %s\n", version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "encode":
		cli.CmdEncode(args)
		return
	case "status", "mint", "attest":
	default:
		fmt.Fprintf(os.Stderr, "zpass: unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := dial(ctx, net)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zpass: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	sub, err := attest.NewSubmitter(client, net.Registry, net.PollInterval)
	if err != nil {
		client.Close()
		fmt.Fprintf(os.Stderr, "zpass: %v\n", err)
		os.Exit(1)
	}

	env := cli.Env{
		Net:    net,
		Chain:  client,
		Attest: sub,
		Log:    log,
	}

	switch cmd {
	case "status":
		cli.CmdStatus(ctx, env, args)
	case "mint":
		cli.CmdMint(ctx, env, args)
	case "attest":
		cli.CmdAttest(ctx, env, args)
	}
}

func dial(ctx context.Context, net config.Network) (*chain.Client, error) {
	return chain.Dial(ctx, net.RPCURL, chain.Config{
		Passport:  net.Passport,
		MintPrice: net.MintPrice,
		ChainID:   net.ChainID,
	})
}

func runTUI(ctx context.Context, net config.Network) error {
	dataDir := cli.DataDir()
	firstRun := cli.IsFirstRun(dataDir)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// the terminal belongs to bubbletea, so logs go to a file
	logFile, err := os.OpenFile(filepath.Join(dataDir, "zpass.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	log := slog.New(slog.NewTextHandler(logFile, nil))

	client, err := dial(ctx, net)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := attest.NewSubmitter(client, net.Registry, net.PollInterval)
	if err != nil {
		return err
	}

	m := tui.New(version, dataDir, firstRun, tui.Services{
		Net:     net,
		Chain:   client,
		Attest:  sub,
		Log:     log,
		Context: ctx,
	})

	p := tea.NewProgram(m, tea.WithContext(ctx))
	finalModel, err := p.Run()
	if fm, ok := finalModel.(tui.Model); ok {
		fm.Close()
	}
	if err != nil {
		return err
	}

	log.Info("exit")
	return nil
}
