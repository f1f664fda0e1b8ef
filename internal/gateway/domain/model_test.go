package domain

import "testing"

func TestStatusClass(t *testing.T) {
	cases := map[Status]StatusClass{
		StatusApproved:    ClassApproved,
		StatusRejected:    ClassFailed,
		StatusCancelled:   ClassFailed,
		StatusPending:     ClassPending,
		StatusInProcess:   ClassPending,
		StatusInMediation: ClassPending,
		StatusAuthorized:  ClassPending,
		StatusRefunded:    ClassReversal,
		StatusChargedBack: ClassReversal,
		Status("weird"):   ClassUnknown,
		Status(""):        ClassUnknown,
	}
	for status, want := range cases {
		if got := status.Class(); got != want {
			t.Fatalf("%q: expected %q, got %q", status, want, got)
		}
	}
}
