package capture

import (
	"context"
	"fmt"

	"github.com/opencampus/trail/internal/domain"
)

// Actor identifies who performed an audited action. A zero Actor is treated
// as the system itself.
type Actor struct {
	ID    string
	Type  domain.ActorType
	Name  string
	Email string
}

// Resource identifies the entity an action affected. Name is a display
// snapshot taken now; it is stored on the event so the trail stays readable
// after the entity is gone.
type Resource struct {
	Type string
	ID   string
	Name string
}

func (a Actor) apply(e *domain.AuditEvent) {
	if a.Type == "" {
		e.ActorType = domain.ActorSystem
		e.ActorName = "System"
		return
	}
	e.ActorType = a.Type
	e.ActorName = a.Name
	if a.ID != "" {
		e.ActorID = &a.ID
	}
	if a.Email != "" {
		e.ActorEmail = &a.Email
	}
}

func (res Resource) apply(e *domain.AuditEvent) {
	if res.Type != "" {
		e.ResourceType = &res.Type
	}
	if res.ID != "" {
		e.ResourceID = &res.ID
	}
	if res.Name != "" {
		e.ResourceName = &res.Name
	}
}

// LogLogin records an authentication attempt.
func (r *Recorder) LogLogin(ctx context.Context, actor Actor, success bool, meta domain.Metadata) error {
	e := &domain.AuditEvent{
		Category: domain.CategoryAuthentication,
		Metadata: meta,
	}
	actor.apply(e)
	if success {
		e.Action = "login_success"
		e.Status = domain.StatusSuccess
		e.Details = fmt.Sprintf("%s logged in", displayName(actor))
	} else {
		e.Action = "login_failure"
		e.Status = domain.StatusFailure
		e.Details = fmt.Sprintf("Failed login attempt for %s", displayName(actor))
	}
	return r.Record(ctx, e)
}

// LogLogout records the end of a session.
func (r *Recorder) LogLogout(ctx context.Context, actor Actor, meta domain.Metadata) error {
	e := &domain.AuditEvent{
		Category: domain.CategoryAuthentication,
		Action:   "logout",
		Details:  fmt.Sprintf("%s logged out", displayName(actor)),
		Metadata: meta,
	}
	actor.apply(e)
	return r.Record(ctx, e)
}

// LogUserAction records an administrative change to a user account
// (created, updated, deactivated, role changed).
func (r *Recorder) LogUserAction(ctx context.Context, actor Actor, action string, target Resource, details string, status domain.Status, meta domain.Metadata) error {
	return r.logDomain(ctx, domain.CategoryUserManagement, actor, action, target, details, status, meta)
}

// LogCourseAction records a change to course content (course, module, lesson).
func (r *Recorder) LogCourseAction(ctx context.Context, actor Actor, action string, course Resource, details string, status domain.Status, meta domain.Metadata) error {
	return r.logDomain(ctx, domain.CategoryCourseContent, actor, action, course, details, status, meta)
}

// LogEnrollment records enrollment lifecycle changes.
func (r *Recorder) LogEnrollment(ctx context.Context, actor Actor, action string, enrollment Resource, details string, status domain.Status, meta domain.Metadata) error {
	return r.logDomain(ctx, domain.CategoryEnrollment, actor, action, enrollment, details, status, meta)
}

// LogPayment records payment processing outcomes.
func (r *Recorder) LogPayment(ctx context.Context, actor Actor, action string, payment Resource, details string, status domain.Status, meta domain.Metadata) error {
	return r.logDomain(ctx, domain.CategoryPayment, actor, action, payment, details, status, meta)
}

// LogCommunication records outbound messages and notifications.
func (r *Recorder) LogCommunication(ctx context.Context, actor Actor, action string, target Resource, details string, status domain.Status, meta domain.Metadata) error {
	return r.logDomain(ctx, domain.CategoryCommunication, actor, action, target, details, status, meta)
}

// LogSystem records events initiated by the platform itself (maintenance,
// scheduled jobs, configuration changes).
func (r *Recorder) LogSystem(ctx context.Context, action, details string, status domain.Status, meta domain.Metadata) error {
	e := &domain.AuditEvent{
		Category: domain.CategorySystem,
		Action:   action,
		Details:  details,
		Status:   status,
		Metadata: meta,
	}
	Actor{}.apply(e)
	return r.Record(ctx, e)
}

func (r *Recorder) logDomain(ctx context.Context, category domain.Category, actor Actor, action string, res Resource, details string, status domain.Status, meta domain.Metadata) error {
	e := &domain.AuditEvent{
		Category: category,
		Action:   action,
		Details:  details,
		Status:   status,
		Metadata: meta,
	}
	actor.apply(e)
	res.apply(e)
	return r.Record(ctx, e)
}

func displayName(a Actor) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return "unknown user"
}
