package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/zarlcorp/zpass/internal/chain"
)

// Request describes a transaction awaiting approval.
type Request struct {
	Purpose string
	From    common.Address
	To      *common.Address
	Value   *big.Int
	Gas     uint64
	FeeCap  *big.Int
	ChainID *big.Int
}

// MaxCost is value plus the worst-case gas fee.
func (r Request) MaxCost() *big.Int {
	cost := new(big.Int)
	if r.FeeCap != nil {
		cost.Mul(r.FeeCap, new(big.Int).SetUint64(r.Gas))
	}
	if r.Value != nil {
		cost.Add(cost, r.Value)
	}
	return cost
}

// Summary renders the request for a confirmation prompt.
func (r Request) Summary() string {
	to := "(contract creation)"
	if r.To != nil {
		to = r.To.Hex()
	}
	return fmt.Sprintf("%s\n  from: %s\n  to:   %s\n  value: %s\n  max cost: %s",
		r.Purpose, r.From.Hex(), to, chain.FormatEther(r.Value), chain.FormatEther(r.MaxCost()))
}

// Approver decides whether a transaction may be signed.
type Approver interface {
	Approve(ctx context.Context, req Request) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req Request) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// AutoApprove signs everything. Use only when the user already confirmed,
// for example with a --yes flag.
var AutoApprove Approver = ApproverFunc(func(context.Context, Request) (bool, error) {
	return true, nil
})

// Deny refuses everything.
var Deny Approver = ApproverFunc(func(context.Context, Request) (bool, error) {
	return false, nil
})

// TerminalApprover asks y/N on an interactive terminal. Prompts are
// serialized and share one buffered reader.
type TerminalApprover struct {
	in          io.Reader
	out         io.Writer
	interactive bool

	mu      sync.Mutex
	r       *bufio.Reader
	pending chan string // read still outstanding from an earlier prompt
}

// NewTerminalApprover reads answers from in and writes prompts to out.
// Requests are refused when in is not a terminal.
func NewTerminalApprover(in *os.File, out io.Writer) *TerminalApprover {
	return &TerminalApprover{
		in:          in,
		out:         out,
		interactive: term.IsTerminal(int(in.Fd())),
	}
}

func (a *TerminalApprover) Approve(ctx context.Context, req Request) (bool, error) {
	if !a.interactive {
		return false, fmt.Errorf("approve: stdin is not a terminal (use --yes)")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	answer := a.readLine()
	fmt.Fprintf(a.out, "%s\nsign and send? [y/N] ", req.Summary())

	select {
	case <-ctx.Done():
		// the read stays outstanding and is picked up by the next prompt
		fmt.Fprintln(a.out)
		return false, ctx.Err()
	case line := <-answer:
		a.pending = nil
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// readLine returns the channel of the outstanding read, starting one if
// none is running. A line typed while no prompt was shown is discarded.
func (a *TerminalApprover) readLine() chan string {
	if a.pending != nil {
		select {
		case <-a.pending:
			a.pending = nil
		default:
			return a.pending
		}
	}
	if a.r == nil {
		a.r = bufio.NewReader(a.in)
	}
	ch := make(chan string, 1)
	r := a.r
	go func() {
		line, _ := r.ReadString('\n')
		ch <- line
	}()
	a.pending = ch
	return ch
}

// Prompt hands requests to another goroutine, typically the TUI, which
// answers them through Pending.Answer.
type Prompt struct {
	requests chan *Pending
}

// Pending is a request waiting for an answer.
type Pending struct {
	Request Request
	answer  chan bool
}

// Answer resolves the request. Only the first answer counts.
func (p *Pending) Answer(ok bool) {
	select {
	case p.answer <- ok:
	default:
	}
}

// NewPrompt creates a Prompt.
func NewPrompt() *Prompt {
	return &Prompt{requests: make(chan *Pending)}
}

// Requests delivers pending requests.
func (p *Prompt) Requests() <-chan *Pending {
	return p.requests
}

func (p *Prompt) Approve(ctx context.Context, req Request) (bool, error) {
	pending := &Pending{Request: req, answer: make(chan bool, 1)}

	select {
	case p.requests <- pending:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-pending.answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
