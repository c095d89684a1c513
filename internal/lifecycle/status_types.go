package lifecycle

import "fmt"

// MainStatus is the coarse lifecycle phase of an event.
type MainStatus int

const (
	Draft MainStatus = iota
	Upcoming
	Ongoing
	Completed
)

var mainStatusNames = [...]string{
	Draft:     "draft",
	Upcoming:  "upcoming",
	Ongoing:   "ongoing",
	Completed: "completed",
}

func (s MainStatus) String() string {
	if s < 0 || int(s) >= len(mainStatusNames) {
		return fmt.Sprintf("MainStatus(%d)", int(s))
	}
	return mainStatusNames[s]
}

func (s MainStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MainStatus) UnmarshalText(b []byte) error {
	for i, n := range mainStatusNames {
		if n == string(b) {
			*s = MainStatus(i)
			return nil
		}
	}
	return fmt.Errorf("lifecycle: unknown main status %q", string(b))
}

// SubStatus is the fine-grained phase within a MainStatus. The declaration
// order is the order in which an event visits the phases.
type SubStatus int

const (
	RegistrationNotStarted SubStatus = iota
	RegistrationOpen
	RegistrationClosed
	EventStarted
	EventEnded
	CertificateAvailable
)

var subStatusNames = [...]string{
	RegistrationNotStarted: "registration_not_started",
	RegistrationOpen:       "registration_open",
	RegistrationClosed:     "registration_closed",
	EventStarted:           "event_started",
	EventEnded:             "event_ended",
	CertificateAvailable:   "certificate_available",
}

func (s SubStatus) String() string {
	if s < 0 || int(s) >= len(subStatusNames) {
		return fmt.Sprintf("SubStatus(%d)", int(s))
	}
	return subStatusNames[s]
}

func (s SubStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SubStatus) UnmarshalText(b []byte) error {
	for i, n := range subStatusNames {
		if n == string(b) {
			*s = SubStatus(i)
			return nil
		}
	}
	return fmt.Errorf("lifecycle: unknown sub status %q", string(b))
}

// MainFor returns the main status that owns sub.
func MainFor(sub SubStatus) MainStatus {
	switch sub {
	case RegistrationNotStarted, RegistrationOpen, RegistrationClosed:
		return Upcoming
	case EventStarted:
		return Ongoing
	case EventEnded, CertificateAvailable:
		return Completed
	}
	return Draft
}

// StatusResult is the derived status of one event at one instant.
// Values are only produced by the calculator, so Main and Sub always agree.
type StatusResult struct {
	Main MainStatus `json:"main_status"`
	Sub  SubStatus  `json:"sub_status"`
}

func newResult(sub SubStatus) StatusResult {
	return StatusResult{Main: MainFor(sub), Sub: sub}
}

func draftResult() StatusResult {
	return StatusResult{Main: Draft, Sub: RegistrationNotStarted}
}

func (r StatusResult) IsRegistrationOpen() bool { return r.Sub == RegistrationOpen }

func (r StatusResult) IsEventOngoing() bool { return r.Sub == EventStarted }

func (r StatusResult) AreCertificatesAvailable() bool { return r.Sub == CertificateAvailable }

func (r StatusResult) String() string { return r.Main.String() + "/" + r.Sub.String() }
