package domain

const TicketSuccess = "SUCCESS"

// RoomTicket is what the rendezvous service hands back on create/join.
type RoomTicket struct {
	Ret       string   `json:"ret"`
	ClientID  ClientID `json:"id"`
	RoomID    RoomID   `json:"room"`
	Host      string   `json:"host"`
	Character string   `json:"character"`
}

func (t RoomTicket) OK() bool { return t.Ret == TicketSuccess }
