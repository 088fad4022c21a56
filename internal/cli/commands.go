package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zarlcorp/zpass/internal/attest"
	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/config"
	"github.com/zarlcorp/zpass/internal/mint"
	"github.com/zarlcorp/zpass/internal/passport"
	"github.com/zarlcorp/zpass/internal/settings"
	"github.com/zarlcorp/zpass/internal/wallet"
)

// Env is what the networked subcommands run against.
type Env struct {
	Net    config.Network
	Chain  *chain.Client
	Attest *attest.Submitter
	Log    *slog.Logger
}

// CmdStatus prints the passport held by an address, or by the configured
// wallet when no address is given.
func CmdStatus(ctx context.Context, env Env, args []string) {
	if err := status(ctx, env, os.Stdout, args); err != nil {
		exit(err)
	}
}

// CmdMint creates the configured wallet's passport.
func CmdMint(ctx context.Context, env Env, args []string) {
	if err := mintPassport(ctx, env, os.Stdout, args); err != nil {
		exit(err)
	}
}

// CmdAttest records an arrival attestation for a recipient, by default the
// configured wallet.
func CmdAttest(ctx context.Context, env Env, args []string) {
	if err := attestArrival(ctx, env, os.Stdout, args); err != nil {
		exit(err)
	}
}

// CmdEncode prints the encoded arrival payload without sending anything.
func CmdEncode(args []string) {
	out, err := encodeArrival(args, time.Now())
	if err != nil {
		exit(err)
	}
	fmt.Println(out)
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "zpass: %v\n", err)
	if k := passport.KindOf(err); k != passport.KindNone && !passport.SafeToRetry(err) {
		fmt.Fprintln(os.Stderr, "zpass: chain state may have changed, run 'zpass status' before retrying")
	}
	os.Exit(1)
}

func status(ctx context.Context, env Env, w io.Writer, args []string) error {
	var addr common.Address
	if a := positional(args); a != "" {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid address %q", a)
		}
		addr = common.HexToAddress(a)
	} else {
		s, col, err := OpenStore(DataDir())
		if err != nil {
			return err
		}
		defer s.Close()

		wal, err := openWallet(col, wallet.Deny)
		if err != nil {
			return err
		}
		addr = wal.Address()
		wal.Close()
	}

	rec, err := env.Chain.Passport(ctx, addr)
	if err != nil {
		return err
	}

	if hasFlag(args, "--json") {
		return printJSON(w, statusJSON{Address: addr.Hex(), Passport: rec})
	}
	printStatus(w, addr, rec)
	return nil
}

type statusJSON struct {
	Address  string           `json:"address"`
	Passport *passport.Record `json:"passport"`
}

func printStatus(w io.Writer, addr common.Address, rec *passport.Record) {
	fmt.Fprintf(w, "  address:  %s\n", addr.Hex())
	if rec == nil {
		fmt.Fprintln(w, "  passport: none")
		return
	}
	printRecord(w, *rec)
}

func printRecord(w io.Writer, rec passport.Record) {
	fmt.Fprintf(w, "  name:     %s\n", rec.Name)
	fmt.Fprintf(w, "  born:     %s, %s\n", rec.PlaceOfBirth, passport.FormatDate(rec.DateOfBirth))
	fmt.Fprintf(w, "  issued:   %s\n", rec.Issued().Format("2006-01-02 15:04 MST"))
}

// parseDraft reads --name, --place and --dob.
func parseDraft(args []string) (passport.Draft, error) {
	var d passport.Draft
	d.FullName, _ = flagValue(args, "--name")
	d.PlaceOfBirth, _ = flagValue(args, "--place")
	if dob, ok := flagValue(args, "--dob"); ok {
		ts, err := passport.ParseDate(dob)
		if err != nil {
			return passport.Draft{}, err
		}
		d.DateOfBirth = ts
	}
	if err := d.Validate(); err != nil {
		return passport.Draft{}, err
	}
	return d, nil
}

func mintPassport(ctx context.Context, env Env, w io.Writer, args []string) error {
	d, err := parseDraft(args)
	if err != nil {
		return err
	}

	s, col, err := OpenStore(DataDir())
	if err != nil {
		return err
	}
	defer s.Close()

	storage := settings.Load[settings.Storage](col, settings.KeyStorage)
	if !storage.Configured() {
		return fmt.Errorf("storage: %w: run zpass and open settings", passport.ErrStorageAuth)
	}
	up, err := storage.NewUploader(ctx)
	if err != nil {
		return err
	}

	wal, err := openWallet(col, approver(args))
	if err != nil {
		return err
	}
	defer wal.Close()

	orch := mint.New(mint.Deps{
		Uploader: up,
		Reader:   env.Chain,
		Minter:   env.Chain,
		Price:    env.Net.MintPrice,
	},
		mint.WithLogger(env.Log),
		mint.WithPollInterval(env.Net.PollInterval),
		mint.WithSettlementTimeout(env.Net.SettlementTimeout),
		mint.WithObserver(func(st mint.Status) {
			fmt.Fprintf(os.Stderr, "  .. %s\n", st.Phase)
		}),
	)

	return runMint(ctx, w, orch, wal, d, env.Net)
}

// runMint drives one attempt for identity and reports the outcome.
func runMint(ctx context.Context, w io.Writer, orch *mint.Orchestrator, identity chain.Signer, d passport.Draft, net config.Network) error {
	st, err := orch.Connect(ctx, identity)
	if err != nil {
		return err
	}
	if st.HasRecord {
		printRecord(w, *st.Record)
		return fmt.Errorf("mint: %w", passport.ErrAlreadyHasPassport)
	}

	orch.SetDraft(d)
	fmt.Fprintln(w, "plan:")
	for i, step := range orch.Plan() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}

	st, err = orch.Submit(ctx)
	if st.Tx.Hash != (common.Hash{}) {
		fmt.Fprintf(w, "  tx:       %s\n", net.TxURL(st.Tx.Hash))
	}
	if err != nil {
		if st.HasRecord && st.Record != nil {
			fmt.Fprintln(w, "passport exists despite the error:")
			printRecord(w, *st.Record)
		}
		return err
	}

	fmt.Fprintln(w, "passport issued:")
	if st.Record != nil {
		printRecord(w, *st.Record)
	}
	return nil
}

func parsePayload(args []string, now time.Time) (attest.Payload, error) {
	country, _ := flagValue(args, "--country")
	at := now
	if v, ok := flagValue(args, "--time"); ok {
		t, err := parseTime(v)
		if err != nil {
			return attest.Payload{}, err
		}
		at = t
	}
	return attest.NewPayload(country, at), nil
}

// parseTime accepts RFC 3339 or unix milliseconds.
func parseTime(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return time.Time{}, fmt.Errorf("invalid time %q: must not be negative", v)
		}
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or unix milliseconds", v)
	}
	return t, nil
}

func encodeArrival(args []string, now time.Time) (string, error) {
	p, err := parsePayload(args, now)
	if err != nil {
		return "", err
	}
	data, err := attest.Encode(p.Country, p.ArrivalTime)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(data), nil
}

func attestArrival(ctx context.Context, env Env, w io.Writer, args []string) error {
	p, err := parsePayload(args, time.Now())
	if err != nil {
		return err
	}

	s, col, err := OpenStore(DataDir())
	if err != nil {
		return err
	}
	defer s.Close()

	wal, err := openWallet(col, approver(args))
	if err != nil {
		return err
	}
	defer wal.Close()

	recipient := wal.Address()
	if v, ok := flagValue(args, "--recipient"); ok {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("invalid recipient %q", v)
		}
		recipient = common.HexToAddress(v)
	}

	return runAttest(ctx, w, env, wal, recipient, p)
}

func runAttest(ctx context.Context, w io.Writer, env Env, signer chain.Signer, recipient common.Address, p attest.Payload) error {
	log := env.Log.With("recipient", recipient.Hex(), "country", p.Country)

	h, err := env.Attest.Submit(ctx, signer, recipient, env.Net.SchemaUID, p)
	if err != nil {
		return err
	}
	log.Info("attestation submitted", "tx", h.Tx.String())
	fmt.Fprintf(w, "  tx:       %s\n", env.Net.TxURL(h.Tx.Hash))

	awaitCtx, cancel := context.WithTimeout(ctx, env.Net.SettlementTimeout)
	defer cancel()

	uid, err := env.Attest.Await(awaitCtx, h)
	if err != nil {
		if errors.Is(err, passport.ErrSettlementTimeout) {
			log.Warn("attestation not settled", "tx", h.Tx.String())
		}
		return err
	}
	log.Info("attestation settled", "uid", uid.Hex())
	fmt.Fprintf(w, "  uid:      %s\n", uid.Hex())
	return nil
}
