package task

// Status is the state of an Assignment.
//
//	PENDING     --start-->           IN_PROGRESS
//	PENDING     --submit/complete--> SUBMITTED
//	IN_PROGRESS --submit/complete--> SUBMITTED
//	REJECTED    --submit/complete--> SUBMITTED
//	SUBMITTED   --verify-->          APPROVED | REJECTED
//
// APPROVED and CANCELLED are terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses are listed in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusSubmitted, StatusApproved, StatusRejected, StatusCancelled}

func (s Status) CanStart() bool {
	return s == StatusPending
}

func (s Status) CanSubmit() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusRejected
}

func (s Status) CanVerify() bool {
	return s == StatusSubmitted
}

// IsOpen reports whether the assignee still has work to do, rejected work included.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusRejected
}

func (s Status) rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return len(Statuses)
}
