package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is a menu button press decoded from callback data. The set is closed:
// every concrete type below is handled in handleCallbackQuery.
type Action interface {
	// Data encodes the action as callback data (at most 64 bytes).
	Data() string
	isAction()
}

type (
	ViewRooms         struct{}
	MyReservations    struct{}
	Help              struct{}
	BackToMenu        struct{}
	ShowRoom          struct{ ID int64 }
	RoomToday         struct{ ID int64 }
	RoomEvents        struct{ ID int64 }
	Reserve           struct{ ID int64 }
	CancelReservation struct{ ID int64 }
)

const (
	dataViewRooms      = "rooms"
	dataMyReservations = "mine"
	dataHelp           = "help"
	dataBackToMenu     = "menu"
	prefixShowRoom     = "room"
	prefixRoomToday    = "today"
	prefixRoomEvents   = "events"
	prefixReserve      = "reserve"
	prefixCancel       = "cancel"
)

func (ViewRooms) Data() string           { return dataViewRooms }
func (MyReservations) Data() string      { return dataMyReservations }
func (Help) Data() string                { return dataHelp }
func (BackToMenu) Data() string          { return dataBackToMenu }
func (a ShowRoom) Data() string          { return withID(prefixShowRoom, a.ID) }
func (a RoomToday) Data() string         { return withID(prefixRoomToday, a.ID) }
func (a RoomEvents) Data() string        { return withID(prefixRoomEvents, a.ID) }
func (a Reserve) Data() string           { return withID(prefixReserve, a.ID) }
func (a CancelReservation) Data() string { return withID(prefixCancel, a.ID) }

func (ViewRooms) isAction()         {}
func (MyReservations) isAction()    {}
func (Help) isAction()              {}
func (BackToMenu) isAction()        {}
func (ShowRoom) isAction()          {}
func (RoomToday) isAction()         {}
func (RoomEvents) isAction()        {}
func (Reserve) isAction()           {}
func (CancelReservation) isAction() {}

func withID(prefix string, id int64) string {
	return prefix + ":" + strconv.FormatInt(id, 10)
}

// ParseAction decodes callback data produced by Action.Data.
func ParseAction(data string) (Action, error) {
	switch data {
	case dataViewRooms:
		return ViewRooms{}, nil
	case dataMyReservations:
		return MyReservations{}, nil
	case dataHelp:
		return Help{}, nil
	case dataBackToMenu:
		return BackToMenu{}, nil
	}

	prefix, raw, ok := strings.Cut(data, ":")
	if !ok {
		return nil, fmt.Errorf("unknown action %q", data)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid id in action %q", data)
	}

	switch prefix {
	case prefixShowRoom:
		return ShowRoom{ID: id}, nil
	case prefixRoomToday:
		return RoomToday{ID: id}, nil
	case prefixRoomEvents:
		return RoomEvents{ID: id}, nil
	case prefixReserve:
		return Reserve{ID: id}, nil
	case prefixCancel:
		return CancelReservation{ID: id}, nil
	}
	return nil, fmt.Errorf("unknown action %q", data)
}

// actionName is the metric label of an action.
func actionName(a Action) string {
	name, _, _ := strings.Cut(a.Data(), ":")
	return name
}
