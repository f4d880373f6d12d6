// Package bot routes inbound Telegram updates into workflow operations and
// renders the guided request form.
package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand indicates the callback token matched no known verb.
var ErrUnknownCommand = errors.New("bot: unknown command")

// Command is a decoded callback token. Tokens follow {verb}_{qualifier}
// optionally followed by an id or value, joined with underscores; ids may
// themselves contain underscores, so decoding strips known prefixes rather
// than splitting blindly.
type Command interface {
	isCommand()
}

// NewRequestCommand starts a fresh draft.
type NewRequestCommand struct{}

// MyRequestsCommand lists the buyer's persisted orders.
type MyRequestsCommand struct{}

// SelectRegionCommand applies a region selection to the active draft.
type SelectRegionCommand struct{ RegionID string }

// SelectMakeCommand applies a manufacturer selection.
type SelectMakeCommand struct{ MakeID string }

// SelectModelCommand applies a model selection.
type SelectModelCommand struct{ ModelID string }

// SelectYearRangeCommand narrows the year to a range.
type SelectYearRangeCommand struct {
	From int
	To   int
}

// SelectYearCommand picks the exact year.
type SelectYearCommand struct{ Year int }

// FinishItemsCommand closes item collection and moves to review.
type FinishItemsCommand struct{}

// ConfirmRequestCommand commits the reviewed draft as an order.
type ConfirmRequestCommand struct{}

// SwitchDraftCommand makes another open draft the active one.
type SwitchDraftCommand struct{ DraftID string }

// DeleteDraftCommand discards an open draft.
type DeleteDraftCommand struct{ DraftID string }

// AcceptOfferCommand accepts an offer on behalf of the buyer.
type AcceptOfferCommand struct{ OfferID string }

// RejectOfferCommand declines an offer on behalf of the buyer.
type RejectOfferCommand struct{ OfferID string }

// ViewOrderCommand shows one order with its offers.
type ViewOrderCommand struct{ OrderID string }

// RateSupplierCommand scores the supplier behind an accepted offer.
type RateSupplierCommand struct {
	OfferID string
	Score   int
}

func (NewRequestCommand) isCommand()      {}
func (MyRequestsCommand) isCommand()      {}
func (SelectRegionCommand) isCommand()    {}
func (SelectMakeCommand) isCommand()      {}
func (SelectModelCommand) isCommand()     {}
func (SelectYearRangeCommand) isCommand() {}
func (SelectYearCommand) isCommand()      {}
func (FinishItemsCommand) isCommand()     {}
func (ConfirmRequestCommand) isCommand()  {}
func (SwitchDraftCommand) isCommand()     {}
func (DeleteDraftCommand) isCommand()     {}
func (AcceptOfferCommand) isCommand()     {}
func (RejectOfferCommand) isCommand()     {}
func (ViewOrderCommand) isCommand()       {}
func (RateSupplierCommand) isCommand()    {}

// ParseCallback decodes an inline-button token into a Command.
func ParseCallback(data string) (Command, error) {
	token := strings.TrimSpace(data)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnknownCommand)
	}

	switch token {
	case "new_request":
		return NewRequestCommand{}, nil
	case "my_requests":
		return MyRequestsCommand{}, nil
	case "finish_items":
		return FinishItemsCommand{}, nil
	case "confirm_request":
		return ConfirmRequestCommand{}, nil
	}

	if rest, ok := strings.CutPrefix(token, "select_region_"); ok && rest != "" {
		return SelectRegionCommand{RegionID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "select_make_"); ok && rest != "" {
		return SelectMakeCommand{MakeID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "select_model_"); ok && rest != "" {
		return SelectModelCommand{ModelID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "select_years_"); ok && rest != "" {
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: year range token %q", ErrUnknownCommand, token)
		}
		from, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: year range token %q", ErrUnknownCommand, token)
		}
		to, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: year range token %q", ErrUnknownCommand, token)
		}
		return SelectYearRangeCommand{From: from, To: to}, nil
	}
	if rest, ok := strings.CutPrefix(token, "select_year_"); ok && rest != "" {
		year, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: year token %q", ErrUnknownCommand, token)
		}
		return SelectYearCommand{Year: year}, nil
	}
	if rest, ok := strings.CutPrefix(token, "switch_draft_"); ok && rest != "" {
		return SwitchDraftCommand{DraftID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "delete_draft_"); ok && rest != "" {
		return DeleteDraftCommand{DraftID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "accept_offer_"); ok && rest != "" {
		return AcceptOfferCommand{OfferID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "reject_offer_"); ok && rest != "" {
		return RejectOfferCommand{OfferID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "view_order_"); ok && rest != "" {
		return ViewOrderCommand{OrderID: rest}, nil
	}
	if rest, ok := strings.CutPrefix(token, "rate_supplier_"); ok && rest != "" {
		// the offer id may itself contain underscores; the score is always
		// the final segment
		cut := strings.LastIndex(rest, "_")
		if cut <= 0 || cut == len(rest)-1 {
			return nil, fmt.Errorf("%w: rating token %q", ErrUnknownCommand, token)
		}
		score, err := strconv.Atoi(rest[cut+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: rating token %q", ErrUnknownCommand, token)
		}
		return RateSupplierCommand{OfferID: rest[:cut], Score: score}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, token)
}

// SupplierQuote is a parsed free-text offer submission: the order code the
// supplier is quoting followed by the price in riyals.
type SupplierQuote struct {
	OrderCode string
	Halalas   int64
	Notes     string
}

// ParseSupplierQuote parses "CODE PRICE [notes...]" supplier replies. It
// returns false when the text does not look like a quote at all.
func ParseSupplierQuote(text string) (SupplierQuote, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return SupplierQuote{}, false
	}

	code := strings.ToUpper(fields[0])
	if !looksLikeOrderCode(code) {
		return SupplierQuote{}, false
	}

	halalas, err := parseRiyals(fields[1])
	if err != nil {
		return SupplierQuote{}, false
	}

	return SupplierQuote{
		OrderCode: code,
		Halalas:   halalas,
		Notes:     strings.Join(fields[2:], " "),
	}, true
}

// looksLikeOrderCode matches {letters}{digits} with at least the date+sequence
// digits of a generated code.
func looksLikeOrderCode(code string) bool {
	if len(code) < 8 {
		return false
	}
	i := 0
	for i < len(code) && code[i] >= 'A' && code[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(code) {
		return false
	}
	for _, c := range code[i:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(code)-i >= 8
}

// parseRiyals converts a decimal riyal amount to halalas.
func parseRiyals(raw string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(raw, ".")
	riyals, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || riyals < 0 {
		return 0, fmt.Errorf("bot: invalid amount %q", raw)
	}
	halalas := riyals * 100
	if hasFrac {
		if len(frac) > 2 || frac == "" {
			return 0, fmt.Errorf("bot: invalid amount %q", raw)
		}
		cents, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bot: invalid amount %q", raw)
		}
		if len(frac) == 1 {
			cents *= 10
		}
		halalas += cents
	}
	if halalas <= 0 {
		return 0, fmt.Errorf("bot: amount must be positive")
	}
	return halalas, nil
}
