package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

const (
	textScan          = "Scan card"
	textRemove        = "Remove card"
	textAuthorized    = "AUTHORIZED"
	textNotAuthorized = "Not Authorized"
	textNotRecognized = "Not Recognized"
)

func frameIdle() types.Frame {
	return types.Frame{}.Row(2, textScan)
}

func frameRemove() types.Frame {
	return types.Frame{}.Row(2, textRemove)
}

func frameAuthorized(name string) types.Frame {
	return types.Frame{}.Row(2, name).Row(3, textAuthorized)
}

func frameNotAuthorized(name string) types.Frame {
	return types.Frame{}.Row(2, name).Row(3, textNotAuthorized)
}

func frameNotRecognized() types.Frame {
	return types.Frame{}.Row(3, textNotRecognized)
}

func frameError(what string) types.Frame {
	return types.Frame{}.Row(2, what).Row(3, "Try again")
}

// frameIdentify shows who a card belongs to and its id in hex when the id
// is numeric.
func frameIdentify(rec *types.UserRecord, card types.Card) types.Frame {
	first := "Card uid:"
	if rec != nil && rec.FullName != "" {
		first = rec.FullName
	}
	id := card.ID
	if n, err := strconv.ParseUint(card.ID, 10, 64); err == nil {
		id = fmt.Sprintf("0x%x", n)
	}
	return types.Frame{}.Row(1, first).Row(2, id)
}

func frameMissing(remaining int) types.Frame {
	return types.Frame{}.
		Row(2, "Card missing!").
		Row(3, fmt.Sprintf("%d sec to return", remaining))
}

func frameWaiting(ticksLeft int) types.Frame {
	return types.Frame{}.
		Row(1, "Scan new card").
		Row(2, fmt.Sprintf("or wait %d seconds", ticksLeft)).
		Row(3, "to exit add mode")
}

func frameConfirm(name string) types.Frame {
	if r := []rune(name); len(r) > 15 {
		name = string(r[:15])
	}
	return types.Frame{}.
		Row(1, "Update entry for").
		Row(2, name+"?").
		Row(3, "press and hold").
		Row(4, "DONE to confirm")
}

func frameCapture(prompt, buffer, notice string) types.Frame {
	return types.Frame{}.
		RowLeft(1, prompt).
		RowLeft(2, buffer+"_").
		Row(4, notice)
}

func frameEnrolled(updated bool, name, secondaryID string) types.Frame {
	head := "Added user"
	if updated {
		head = "Updated user"
	}
	f := types.Frame{}.Row(1, head).Row(2, name)
	if strings.TrimSpace(secondaryID) != "" {
		f = f.Row(3, "with id").Row(4, secondaryID)
	}
	return f
}
