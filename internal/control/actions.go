package control

import (
	"dashplayer/internal/models"
	"net/http"

	"github.com/google/uuid"
)

// Action is an instruction for the transport. The only kind is StartDownload.
type Action interface {
	action()
}

// Request is one download within a StartDownload action.
type Request struct {
	ContentID models.ContentID
	URL       string
	Method    string
}

// StartDownload asks the transport to fetch every request on one connection.
type StartDownload struct {
	ConnID   uuid.UUID
	Requests []Request
}

func (StartDownload) action() {}

func newStartDownload(id models.ContentID, url string) StartDownload {
	return StartDownload{
		ConnID:   uuid.New(),
		Requests: []Request{{ContentID: id, URL: url, Method: http.MethodGet}},
	}
}

// pendingAction tracks the content a StartDownload still owes.
type pendingAction struct {
	connID uuid.UUID
	ids    []models.ContentID
}

func newPendingAction(a StartDownload) *pendingAction {
	p := &pendingAction{connID: a.ConnID, ids: make([]models.ContentID, 0, len(a.Requests))}
	for _, r := range a.Requests {
		p.ids = append(p.ids, r.ContentID)
	}
	return p
}

// remove deletes every occurrence of id and returns how many were removed.
func (p *pendingAction) remove(id models.ContentID) int {
	kept := p.ids[:0]
	for _, cur := range p.ids {
		if cur != id {
			kept = append(kept, cur)
		}
	}
	n := len(p.ids) - len(kept)
	p.ids = kept
	return n
}
