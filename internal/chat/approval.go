package chat

// Sequence hands out strictly increasing request ids for the lifetime of one
// coordinator.
type Sequence struct {
	last int64
}

// Next returns the next id, starting at 1.
func (s *Sequence) Next() int64 {
	s.last++
	return s.last
}

// JoinOutcome is the result of a join request.
type JoinOutcome int

const (
	// JoinIgnored means the request was dropped (unknown room, direct room,
	// or a duplicate of a pending request).
	JoinIgnored JoinOutcome = iota
	// JoinApproved means the requester may enter immediately.
	JoinApproved
	// JoinQueued means a request was queued for the owner.
	JoinQueued
)

// Approvals is the join-request state machine over a Directory.
// Requests move pending -> approved | rejected and leave the queue either way.
type Approvals struct {
	dir *Directory
	seq Sequence
}

// NewApprovals returns a workflow bound to dir.
func NewApprovals(dir *Directory) *Approvals {
	return &Approvals{dir: dir}
}

// RequestJoin files a request by user to enter roomID.
func (a *Approvals) RequestJoin(roomID, user string) (JoinOutcome, JoinRequest) {
	r, ok := a.dir.lookup(roomID)
	if !ok {
		return JoinIgnored, JoinRequest{}
	}
	if r.Kind == KindPublic || r.HasMember(user) {
		return JoinApproved, JoinRequest{}
	}
	if r.Kind != KindGroup {
		return JoinIgnored, JoinRequest{}
	}
	for _, req := range r.PendingRequests {
		if req.User == user {
			return JoinIgnored, JoinRequest{}
		}
	}

	req := JoinRequest{ID: a.seq.Next(), Room: r.ID, User: user}
	r.PendingRequests = append(r.PendingRequests, req)
	return JoinQueued, req
}

// Decision describes a resolved join request.
type Decision struct {
	Request  JoinRequest
	Approved bool
	Room     Room
}

// Decide resolves requestID on behalf of actor. Only the owner of the room
// holding the request may decide; anything else reports false.
func (a *Approvals) Decide(requestID int64, approve bool, actor string) (Decision, bool) {
	var (
		d     Decision
		found bool
	)
	a.dir.ownedBy(actor, func(r *Room) bool {
		for i, req := range r.PendingRequests {
			if req.ID != requestID {
				continue
			}
			r.PendingRequests = append(r.PendingRequests[:i:i], r.PendingRequests[i+1:]...)
			if approve && !r.HasMember(req.User) {
				r.Members = append(r.Members, req.User)
			}
			d = Decision{Request: req, Approved: approve, Room: r.clone()}
			found = true
			return false
		}
		return true
	})
	return d, found
}

// Pending returns the queued requests for roomID.
func (a *Approvals) Pending(roomID string) []JoinRequest {
	r, ok := a.dir.lookup(roomID)
	if !ok {
		return nil
	}
	return append([]JoinRequest{}, r.PendingRequests...)
}
