package orchestrators

import (
	"time"

	emailAdapter "hear/internal/adapters/email"
	"hear/internal/application/form"
	"hear/internal/application/visitor"
)

// Form names, as registered with the visitor registry.
const (
	FormConsultation = "consultation"
	FormProfile      = "profile"
	FormFeedback     = "feedback"
)

// FormsDeps are the site-wide collaborators shared by every visitor's forms.
type FormsDeps struct {
	Sender    emailAdapter.Sender
	LeadInbox string
	Now       func() time.Time
}

// FormFactories returns the builders of the three site forms. Each form is
// bound to the visitor's own backend client and Session Store.
func FormFactories(deps FormsDeps) map[string]visitor.FormFactory {
	return map[string]visitor.FormFactory{
		FormConsultation: func(v *visitor.Visitor) form.Spec {
			return NewConsultationSpec(ConsultationDeps{Client: v.Client, Sender: deps.Sender, LeadInbox: deps.LeadInbox})
		},
		FormProfile: func(v *visitor.Visitor) form.Spec {
			return NewProfileSpec(ProfileDeps{Client: v.Client, Sessions: v.Session, Now: deps.Now})
		},
		FormFeedback: func(v *visitor.Visitor) form.Spec {
			return NewFeedbackSpec(FeedbackDeps{Client: v.Client})
		},
	}
}
