package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/personaops/backend/internal/domain"
)

func TestProfileSessionCreatesOnce(t *testing.T) {
	repo := &memProfiles{byID: map[string]*domain.Profile{}}
	svc := NewProfileService(repo, testLogger())
	ctx := context.Background()

	p, err := svc.Session(ctx, "u1", "ada@acme.io")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if p.Email != "ada@acme.io" {
		t.Fatalf("email = %q", p.Email)
	}

	first := "Ada"
	updated, err := svc.Update(ctx, "u1", "ada@acme.io", ProfileUpdate{FirstName: &first})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.FirstName != "Ada" {
		t.Fatalf("first name = %q", updated.FirstName)
	}

	again, err := svc.Session(ctx, "u1", "other@acme.io")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if again.FirstName != "Ada" || again.Email != "ada@acme.io" {
		t.Fatalf("existing profile was replaced: %+v", again)
	}
}

func TestInviteSurvivesMailerFailure(t *testing.T) {
	repo := &memInvitations{}
	mailer := &fakeMailer{err: errBoom}
	svc := NewInvitationService(repo, mailer, "https://app.personaops.io/", testLogger())

	res, err := svc.Invite(context.Background(), "u1", "sam@personaops.io", "Ada@Acme.io")
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if res.EmailSent {
		t.Fatal("EmailSent should be false when the mailer fails")
	}
	if len(repo.rows) != 1 || repo.rows[0].Email != "ada@acme.io" {
		t.Fatalf("stored invitations = %+v", repo.rows)
	}
}

func TestInviteSendsEmail(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewInvitationService(&memInvitations{}, mailer, "https://app.personaops.io", testLogger())

	res, err := svc.Invite(context.Background(), "u1", "", "ada@acme.io")
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if !res.EmailSent || len(mailer.sent) != 1 {
		t.Fatalf("email not sent: %+v", res)
	}
}

func TestInviteLinkEscapesEmail(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewInvitationService(&memInvitations{}, mailer, "https://app.personaops.io", testLogger())

	if _, err := svc.Invite(context.Background(), "u1", "", "a+b@x.com"); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if len(mailer.bodies) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(mailer.bodies))
	}
	if want := "https://app.personaops.io/signup?email=a%2Bb%40x.com\n"; !strings.Contains(mailer.bodies[0], want) {
		t.Fatalf("body = %q, want link %q", mailer.bodies[0], want)
	}
}

func TestInviteRejectsBadAddress(t *testing.T) {
	svc := NewInvitationService(&memInvitations{}, nil, "", testLogger())
	for _, addr := range []string{"", "not-an-email", "Ada <ada@acme.io>"} {
		if _, err := svc.Invite(context.Background(), "u1", "", addr); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Invite(%q) error = %v, want validation error", addr, err)
		}
	}
}

func TestCRMSummarySuccessRate(t *testing.T) {
	repo := &fakeCRM{counts: []domain.DealStageCount{
		{Stage: "appointmentscheduled", Count: 4},
		{Stage: "closedwon", Count: 3},
		{Stage: "closedlost", Count: 1},
	}}
	svc := NewCRMService(repo)

	sum, err := svc.Summary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalDeals != 8 || sum.ClosedWon != 3 || sum.ClosedLost != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if math.Abs(sum.SuccessRate-0.75) > 1e-9 {
		t.Fatalf("success rate = %v, want 0.75", sum.SuccessRate)
	}

	if _, err := svc.Summary(context.Background(), "u1"); err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("repo calls = %d, want 1 while cached", repo.calls)
	}
}

func TestCRMSummaryNoClosedDeals(t *testing.T) {
	svc := NewCRMService(&fakeCRM{counts: []domain.DealStageCount{{Stage: "unknown", Count: 2}}})
	sum, err := svc.Summary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.SuccessRate != 0 {
		t.Fatalf("success rate = %v, want 0", sum.SuccessRate)
	}
}

type memReports struct{ rows []*domain.SavedReport }

func (m *memReports) Create(_ context.Context, r *domain.SavedReport) error {
	r.ID = "rep-1"
	m.rows = append(m.rows, r)
	return nil
}

func (m *memReports) ListByUser(context.Context, string) ([]*domain.SavedReport, error) {
	return m.rows, nil
}

func TestReportSaveValidatesObject(t *testing.T) {
	svc := NewReportService(&memReports{})
	ctx := context.Background()

	if _, err := svc.Save(ctx, "u1", SaveReportRequest{Title: "Q3", Report: json.RawMessage(`[1]`)}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("array report error = %v, want validation error", err)
	}
	if _, err := svc.Save(ctx, "u1", SaveReportRequest{Report: json.RawMessage(`{}`)}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing title error = %v, want validation error", err)
	}
	rep, err := svc.Save(ctx, "u1", SaveReportRequest{Title: " Q3 ", Report: json.RawMessage(`{"deals":3}`)})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rep.Title != "Q3" || rep.ID == "" {
		t.Fatalf("saved report = %+v", rep)
	}
}
