// Package decoder reconstructs trading actions from parsed transaction
// notifications. Decoding is pure: no I/O and no state between calls.
package decoder

import (
	"strconv"
	"strings"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/solana"
)

// handler decodes one instruction of a registered program.
type handler func(tx *txContext, ix *solana.Instruction, pos position) []domain.TxAction

// Decoder dispatches instructions to per-program handlers.
// It is safe for concurrent use.
type Decoder struct {
	handlers map[string]handler // programID -> handler
}

// New creates a decoder with all known programs registered.
func New() *Decoder {
	d := &Decoder{
		handlers: make(map[string]handler),
	}

	d.register(solana.SystemProgramID, decodeSystem)
	d.register(solana.TokenProgramID, decodeToken)
	d.register(RaydiumAMMV4, decodeRaydium)
	d.register(PumpFun, decodePumpFun)
	d.register(PhotonRouter, decodePhoton)

	return d
}

func (d *Decoder) register(programID string, h handler) {
	d.handlers[programID] = h
}

var std = New()

// Decode decodes n with the default decoder.
func Decode(n *solana.Notification) []domain.TxAction {
	return std.Decode(n)
}

// DecodeRaw parses a raw upstream message and decodes it. Parse failures
// are returned as *solana.DecodeError.
func DecodeRaw(data []byte) (*solana.Notification, []domain.TxAction, error) {
	n, err := solana.ParseNotification(data)
	if err != nil {
		return nil, nil, err
	}
	return n, std.Decode(n), nil
}

// Decode returns the actions of n in scan order: top-level instructions
// first, then inner groups. Actions equal by (type, source, destination,
// amount) are collapsed to their first occurrence.
func (d *Decoder) Decode(n *solana.Notification) []domain.TxAction {
	if n == nil {
		return nil
	}

	tx := &txContext{n: n}
	seen := make(map[string]struct{})
	var actions []domain.TxAction

	if burst, indices, ok := detectFeeBurst(n); ok {
		actions = append(actions, burst)
		tx.skip = indices
	}

	for i := range n.Instructions {
		if _, skip := tx.skip[i]; skip {
			continue
		}
		actions = d.scan(tx, &n.Instructions[i], position{group: i, index: -1}, seen, actions)
	}

	for _, g := range n.InnerInstructions {
		for j := range g.Instructions {
			actions = d.scan(tx, &g.Instructions[j], position{inner: true, group: g.Index, index: j}, seen, actions)
		}
	}

	return collapse(actions)
}

func (d *Decoder) scan(tx *txContext, ix *solana.Instruction, pos position, seen map[string]struct{}, actions []domain.TxAction) []domain.TxAction {
	h, ok := d.handlers[ix.ProgramID]
	if !ok {
		return actions
	}

	key := scanKey(ix)
	if _, dup := seen[key]; dup {
		return actions
	}
	seen[key] = struct{}{}

	return append(actions, h(tx, ix, pos)...)
}

// scanKey identifies an instruction by (program, type, source, destination,
// amount). Unparsed instructions are keyed by their data and accounts.
func scanKey(ix *solana.Instruction) string {
	if ix.Parsed == nil {
		return ix.ProgramID + "|raw|" + ix.Data + "|" + strings.Join(ix.Accounts, ",")
	}
	amount := ix.InfoUint("lamports")
	if amount == 0 {
		amount, _ = ix.TokenAmountInfo()
	}
	return ix.ProgramID + "|" + ix.Parsed.Type + "|" + ix.InfoString("source") + "|" +
		ix.InfoString("destination") + "|" + strconv.FormatUint(amount, 10)
}

func collapse(actions []domain.TxAction) []domain.TxAction {
	if len(actions) == 0 {
		return actions
	}
	seen := make(map[string]struct{}, len(actions))
	out := actions[:0]
	for _, a := range actions {
		k := a.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// position locates an instruction within a transaction.
type position struct {
	inner bool
	group int // top-level instruction index, or the inner group's parent index
	index int // index within the inner group; -1 for top-level
}

func (p position) evidence(programID string) map[string]any {
	ev := map[string]any{
		"programId": programID,
		"group":     p.group,
	}
	if p.inner {
		ev["path"] = "inner"
		ev["index"] = p.index
	} else {
		ev["path"] = "top"
	}
	return ev
}

// txContext carries per-call state shared between handlers.
type txContext struct {
	n    *solana.Notification
	skip map[int]struct{} // top-level indices consumed by the fee burst
	swap *domain.TxAction // raydium swap, computed once
}

// group returns the instructions sharing an inner group with pos. For a
// top-level instruction that is the group it triggered.
func (tx *txContext) group(pos position) []solana.Instruction {
	for _, g := range tx.n.InnerInstructions {
		if g.Index == pos.group {
			return g.Instructions
		}
	}
	return nil
}
