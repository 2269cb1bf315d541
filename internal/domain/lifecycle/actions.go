package lifecycle

// Action is a user-facing operation offered for a record in a given status.
type Action string

const (
	ActionConfirm        Action = "confirm"
	ActionReject         Action = "reject"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
	ActionAccept         Action = "accept"
	ActionGenerateReport Action = "generate-report"
)

// Actor identifies who is looking at a record when computing offered actions.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorLab     Actor = "lab"
)

// AppointmentActions returns the actions an actor may take on an appointment.
// Terminal statuses yield no actions.
func AppointmentActions(status AppointmentStatus, actor Actor) []Action {
	switch actor {
	case ActorDoctor:
		switch status {
		case AppointmentPending:
			return []Action{ActionConfirm, ActionReject}
		case AppointmentConfirmed:
			return []Action{ActionComplete}
		}
	case ActorPatient:
		if status == AppointmentPending {
			return []Action{ActionCancel}
		}
	}
	return nil
}

// AppointmentTarget maps an action to the appointment status it produces.
func (a Action) AppointmentTarget() (AppointmentStatus, bool) {
	switch a {
	case ActionConfirm:
		return AppointmentConfirmed, true
	case ActionReject, ActionCancel:
		return AppointmentCancelled, true
	case ActionComplete:
		return AppointmentCompleted, true
	}
	return "", false
}

// TestActions returns the actions a lab may take on a booking it sees in status.
// Report generation is offered only while the report has not been produced yet.
func TestActions(status TestStatus, reportGenerated bool) []Action {
	switch status {
	case TestPending:
		return []Action{ActionAccept, ActionReject}
	case TestStarted:
		if !reportGenerated {
			return []Action{ActionGenerateReport}
		}
	}
	return nil
}
